package search

import (
	"strings"
	"unicode"
)

// Segment is a run of text that either matches the query or not
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// Highlight splits text into segments, marking every case-insensitive occurrence of
// the trimmed query. Matches do not overlap.
func Highlight(text, query string) []Segment {
	if text == "" {
		return nil
	}
	needle := []rune(strings.TrimSpace(query))
	if len(needle) == 0 {
		return []Segment{{Text: text}}
	}
	for i, r := range needle {
		needle[i] = unicode.ToLower(r)
	}

	hay := []rune(text)
	var segments []Segment
	start := 0
	for i := 0; i+len(needle) <= len(hay); {
		if !matchAt(hay, needle, i) {
			i++
			continue
		}
		if i > start {
			segments = append(segments, Segment{Text: string(hay[start:i])})
		}
		segments = append(segments, Segment{Text: string(hay[i : i+len(needle)]), Match: true})
		i += len(needle)
		start = i
	}
	if start < len(hay) {
		segments = append(segments, Segment{Text: string(hay[start:])})
	}
	return segments
}

func matchAt(hay, needle []rune, at int) bool {
	for j, r := range needle {
		if unicode.ToLower(hay[at+j]) != r {
			return false
		}
	}
	return true
}
