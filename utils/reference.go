package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/baoteam/rag-bot/types"
)

// ClipRenderer turns a (video, offset) pair into a timestamp anchor. Known
// video platforms get a deep link that starts playback at the offset.
type ClipRenderer struct {
	YoutubeDomain   string
	YoutubeShortURL string
}

// Render returns the HH:MM:SS anchor for startAt, hyperlinked when videoURL is
// a recognized youtube link.
func (c *ClipRenderer) Render(videoURL string, startAt int) string {
	videoID := ""
	if c.YoutubeDomain != "" && strings.HasPrefix(videoURL, c.YoutubeDomain) {
		parts := strings.Split(videoURL, "v=")
		videoID = strings.Split(parts[len(parts)-1], "&")[0]
	} else if c.YoutubeShortURL != "" && strings.HasPrefix(videoURL, c.YoutubeShortURL) {
		parts := strings.Split(videoURL, "/")
		videoID = strings.Split(parts[len(parts)-1], "?")[0]
	}
	if videoID != "" {
		return fmt.Sprintf("[%s](%s/%s?t=%d)", SecondsToHHMMSS(startAt), c.YoutubeShortURL, videoID, startAt)
	}
	return SecondsToHHMMSS(startAt)
}

// GenReference renders the citation block for a set of retrieved documents.
// Documents are grouped by their video reference in first-seen order; each
// group gets one numbered line with title, source link and every timestamp
// the group's chunks start at. showAllQuotes controls whether every chunk is
// quoted or only the top one (compact transports).
func GenReference(documents []types.Document, showAllQuotes bool, renderClip func(video string, startAt int) string) string {
	if len(documents) == 0 {
		return ""
	}
	if renderClip == nil {
		renderClip = func(_ string, startAt int) string {
			return SecondsToHHMMSS(startAt)
		}
	}

	seenStarts := make(map[string][]int)
	var groupOrder []int // index of the first document of each group
	for i, doc := range documents {
		ref := doc.Metadata.Video
		if _, ok := seenStarts[ref]; !ok {
			groupOrder = append(groupOrder, i)
		}
		seenStarts[ref] = append(seenStarts[ref], doc.Metadata.StartAt)
	}

	refNo := func(doc types.Document) string {
		for n, i := range groupOrder {
			if documents[i].Metadata.Video == doc.Metadata.Video {
				return fmt.Sprintf("[%d]", n+1)
			}
		}
		return ""
	}

	var b strings.Builder
	if showAllQuotes {
		for _, doc := range documents {
			quote := strings.ReplaceAll(doc.Content, "\n", " ")
			b.WriteString("\n> " + quote + refNo(doc) + "\n\n")
		}
	} else {
		quote := strings.ReplaceAll(documents[0].Content, "\n", " ")
		b.WriteString("\n> " + quote + refNo(documents[0]) + "\n")
		if len(documents) > 1 {
			b.WriteString("\nView more? Please click the link below.\n")
		}
	}
	b.WriteString("\n")

	for n, i := range groupOrder {
		doc := documents[i]
		starts := uniqueSorted(seenStarts[doc.Metadata.Video])
		clips := make([]string, 0, len(starts))
		for _, s := range starts {
			clips = append(clips, renderClip(doc.Metadata.Video, s))
		}
		b.WriteString(fmt.Sprintf("[%d]. [%s](%s) %s\n",
			n+1, doc.Metadata.Title, doc.Metadata.Source, strings.Join(clips, ", ")))
	}
	return b.String()
}

func uniqueSorted(values []int) []int {
	seen := make(map[int]bool, len(values))
	var out []int
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
