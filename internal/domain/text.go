package domain

import (
	"strings"
	"unicode"
)

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// DeriveSearchQuery builds the evidence query from the trailing part of
// a draft: the last non-blank paragraph, cut down to its final maxWords
// words. Surrounding punctuation is trimmed from each word.
func DeriveSearchQuery(draft string, maxWords int) string {
	paragraph := lastParagraph(draft)
	words := strings.Fields(paragraph)

	cleaned := words[:0]
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) && r != '#' && r != '@'
		})
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}

	if maxWords > 0 && len(cleaned) > maxWords {
		cleaned = cleaned[len(cleaned)-maxWords:]
	}
	return strings.Join(cleaned, " ")
}

func lastParagraph(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	blocks := strings.Split(text, "\n\n")
	for i := len(blocks) - 1; i >= 0; i-- {
		if strings.TrimSpace(blocks[i]) != "" {
			return blocks[i]
		}
	}
	return ""
}
