package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashOfText(t *testing.T) {
	h := HashOfText("hello world")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashOfText("hello world"))
	assert.NotEqual(t, h, HashOfText("hello worlds"))
}

func TestExtractTimesToSeconds(t *testing.T) {
	text := "0:01:05 intro\nsome talk\n1:02:03 main point\n"
	assert.Equal(t, []int{65, 3723}, ExtractTimesToSeconds(text))
}

func TestExtractTimesToSecondsMinutesOnly(t *testing.T) {
	text := "12:34 first\n1:05 second\n"
	assert.Equal(t, []int{65, 754}, ExtractTimesToSeconds(text))
}

func TestExtractTimesToSecondsFullWidthColon(t *testing.T) {
	text := "1：02：03 full width\n"
	assert.Equal(t, []int{3723}, ExtractTimesToSeconds(text))
}

func TestExtractTimesToSecondsIgnoresMidLine(t *testing.T) {
	text := "we discussed it at 1:02:03 earlier\n"
	assert.Empty(t, ExtractTimesToSeconds(text))
}

func TestSecondsToHHMMSS(t *testing.T) {
	assert.Equal(t, "00:00:00", SecondsToHHMMSS(0))
	assert.Equal(t, "00:01:05", SecondsToHHMMSS(65))
	assert.Equal(t, "01:02:03", SecondsToHHMMSS(3723))
	assert.Equal(t, "00:00:00", SecondsToHHMMSS(-5))
}

func TestCleanMessage(t *testing.T) {
	assert.Equal(t, "hello there", CleanMessage("<@12345>   hello \n there "))
	assert.Equal(t, "", CleanMessage("<@9>"))
}
