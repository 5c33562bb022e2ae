package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// ErrMalformedReply is returned when the model answer carries no usable
// continuation.
var ErrMalformedReply = errors.New("model reply is not a continuation object")

const systemPrompt = `You continue social media drafts in the author's own voice.
Write the next one to three sentences that naturally follow the draft.
Ground factual claims in the numbered sources when they are relevant and never invent facts.
Do not repeat the draft. Do not add hashtags unless the draft already uses them.
Answer with a single JSON object: {"continuation": string, "confidence": number between 0 and 1}.
confidence is your estimate that the continuation is accurate and fits the draft.`

// buildUserPrompt renders the draft and the evidence for the model.
func buildUserPrompt(text string, sources []domain.Source) string {
	var b strings.Builder
	b.WriteString("DRAFT:\n")
	b.WriteString(text)
	b.WriteString("\n\nSOURCES:\n")
	if len(sources) == 0 {
		b.WriteString("(none)\n")
	}
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s <%s>", i+1, s.Title, s.URL)
		if s.Author != "" {
			fmt.Fprintf(&b, " by %s", s.Author)
		}
		if s.PublishedAt != nil {
			fmt.Fprintf(&b, " (%s)", s.PublishedAt.Format("2006-01-02"))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// parseReply extracts the continuation from a model answer. Code fences
// are tolerated. A missing confidence counts as zero.
func parseReply(raw string) (Continuation, error) {
	body := stripFences(raw)
	if !gjson.Valid(body) {
		return Continuation{}, fmt.Errorf("%w: invalid json", ErrMalformedReply)
	}

	doc := gjson.Parse(body)
	text := doc.Get("continuation")
	if !text.Exists() {
		text = doc.Get("text")
	}
	out := Continuation{
		Text:       strings.TrimSpace(text.String()),
		Confidence: clamp(doc.Get("confidence").Float()),
	}
	if out.Text == "" {
		return Continuation{}, fmt.Errorf("%w: empty continuation", ErrMalformedReply)
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
