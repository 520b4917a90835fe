package content

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the backend limit for the content of a single text span.
const MaxTextLength = 2000

// RichText is a run of plain text plus independent style flags.
//
// Spans that are not plain text runs on the backend (mentions, equations)
// keep their wire form in Raw; Text then carries their rendered plain text.
type RichText struct {
	Text          string
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
	Color         string
	Link          string

	Raw json.RawMessage
}

// Plain builds an unstyled span.
func Plain(text string) RichText { return RichText{Text: text} }

// PlainText concatenates the text of spans in order.
func PlainText(spans []RichText) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// sameStyle reports whether two spans can be merged without losing styling.
func (r RichText) sameStyle(o RichText) bool {
	return r.Raw == nil && o.Raw == nil &&
		r.Bold == o.Bold && r.Italic == o.Italic && r.Strikethrough == o.Strikethrough &&
		r.Underline == o.Underline && r.Code == o.Code && r.Color == o.Color && r.Link == o.Link
}

func (r RichText) styled() bool {
	return r.Bold || r.Italic || r.Strikethrough || r.Underline || r.Code || (r.Color != "" && r.Color != "default")
}

type wireLink struct {
	URL string `json:"url"`
}

type wireText struct {
	Content string    `json:"content"`
	Link    *wireLink `json:"link,omitempty"`
}

type wireAnnotations struct {
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Code          bool   `json:"code,omitempty"`
	Color         string `json:"color,omitempty"`
}

type wireRichText struct {
	Type        string           `json:"type,omitempty"`
	Text        *wireText        `json:"text,omitempty"`
	Annotations *wireAnnotations `json:"annotations,omitempty"`
	PlainText   string           `json:"plain_text,omitempty"`
	Href        *string          `json:"href,omitempty"`
}

// MarshalJSON encodes the span in the backend request shape.
func (r RichText) MarshalJSON() ([]byte, error) {
	if r.Raw != nil {
		return r.Raw, nil
	}
	w := wireRichText{Type: "text", Text: &wireText{Content: r.Text}}
	if r.Link != "" {
		w.Text.Link = &wireLink{URL: r.Link}
	}
	if r.styled() {
		w.Annotations = &wireAnnotations{
			Bold:          r.Bold,
			Italic:        r.Italic,
			Strikethrough: r.Strikethrough,
			Underline:     r.Underline,
			Code:          r.Code,
			Color:         r.Color,
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a backend rich text object.
func (r *RichText) UnmarshalJSON(data []byte) error {
	var w wireRichText
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = RichText{}
	if w.Annotations != nil {
		r.Bold = w.Annotations.Bold
		r.Italic = w.Annotations.Italic
		r.Strikethrough = w.Annotations.Strikethrough
		r.Underline = w.Annotations.Underline
		r.Code = w.Annotations.Code
		if w.Annotations.Color != "default" {
			r.Color = w.Annotations.Color
		}
	}
	if (w.Type == "text" || w.Type == "") && w.Text != nil {
		r.Text = w.Text.Content
		if w.Text.Link != nil {
			r.Link = w.Text.Link.URL
		}
		return nil
	}
	r.Text = w.PlainText
	if w.Href != nil {
		r.Link = *w.Href
	}
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// appendSpan appends text with the given style, merging into the previous
// span when the styles match.
func appendSpan(spans []RichText, s RichText) []RichText {
	if s.Text == "" && s.Raw == nil {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].sameStyle(s) {
		spans[n-1].Text += s.Text
		return spans
	}
	return append(spans, s)
}

// chunkSpans splits spans whose text exceeds MaxTextLength. Concatenated text
// is unchanged.
func chunkSpans(spans []RichText) []RichText {
	var out []RichText
	for _, s := range spans {
		if s.Raw != nil || utf8.RuneCountInString(s.Text) <= MaxTextLength {
			out = append(out, s)
			continue
		}
		rest := s.Text
		for rest != "" {
			cut := len(rest)
			if utf8.RuneCountInString(rest) > MaxTextLength {
				cut = 0
				for i := 0; i < MaxTextLength; i++ {
					_, size := utf8.DecodeRuneInString(rest[cut:])
					cut += size
				}
			}
			part := s
			part.Text = rest[:cut]
			out = append(out, part)
			rest = rest[cut:]
		}
	}
	return out
}

// TextSpans converts plain caller text into unstyled spans that respect the
// backend length limit.
func TextSpans(text string) []RichText {
	if text == "" {
		return []RichText{}
	}
	return chunkSpans([]RichText{Plain(text)})
}
