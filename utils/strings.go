package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// HashOfText hashes a string to a short stable identifier.
func HashOfText(input string) string {
	digest := sha256.Sum256([]byte(input))
	hexDigest := hex.EncodeToString(digest[:])
	return hexDigest[len(hexDigest)-16:]
}

var (
	// HH:MM:SS first, then HH:MM, at line starts. Full-width colons appear in
	// transcripts captured from some players.
	timeRegexHMS = regexp.MustCompile(`(?m)^(\d{1,2})[:：]+(\d{1,2})[:：]+(\d{2})`)
	timeRegexHM  = regexp.MustCompile(`(?m)^(\d{1,2})[:：]{1,2}(\d{2})`)
)

// ExtractTimesToSeconds finds timestamp markers in transcript text and returns
// them as sorted offsets in seconds.
func ExtractTimesToSeconds(text string) []int {
	var seconds []int
	if matches := timeRegexHMS.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		for _, m := range matches {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			s, _ := strconv.Atoi(m[3])
			seconds = append(seconds, h*3600+min*60+s)
		}
	} else if matches := timeRegexHM.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		for _, m := range matches {
			min, _ := strconv.Atoi(m[1])
			s, _ := strconv.Atoi(m[2])
			seconds = append(seconds, min*60+s)
		}
	}
	sort.Ints(seconds)
	return seconds
}

// SecondsToHHMMSS formats a duration in seconds as HH:MM:SS.
func SecondsToHHMMSS(seconds int) string {
	if seconds < 0 {
		return "00:00:00"
	}
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

var (
	mentionRegex    = regexp.MustCompile(`<@\d+>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// CleanMessage strips bot mentions and collapses whitespace.
func CleanMessage(msg string) string {
	msg = mentionRegex.ReplaceAllString(msg, "")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(msg, " "))
}
