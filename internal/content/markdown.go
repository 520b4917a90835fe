package content

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.TaskList))

// ToBlocks splits caller text into blocks. The text is read as markdown:
// headings, bulleted, numbered and task lists, quotes, fenced code and
// thematic breaks map to their block types; everything else becomes a
// paragraph. Inline emphasis, strong, code, strikethrough and links become
// span styles. Syntax without a block or span equivalent (raw HTML, images,
// autolinks) is kept as plain text. Backslash escapes are left as written.
func ToBlocks(src string) []Block {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))
	c := converter{src: source}
	return c.blocks(doc)
}

type converter struct {
	src []byte
}

type inlineStyle struct {
	bold, italic, strike, code bool
	link                       string
}

func (s inlineStyle) span(t string) RichText {
	return RichText{Text: t, Bold: s.bold, Italic: s.italic, Strikethrough: s.strike, Code: s.code, Link: s.link}
}

func (c *converter) blocks(parent ast.Node) []Block {
	var out []Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c *converter) block(n ast.Node) []Block {
	switch v := n.(type) {
	case *ast.Heading:
		typ := BlockHeading3
		switch v.Level {
		case 1:
			typ = BlockHeading1
		case 2:
			typ = BlockHeading2
		}
		return []Block{{Type: typ, RichText: c.richText(v)}}
	case *ast.Paragraph, *ast.TextBlock:
		return []Block{{Type: BlockParagraph, RichText: c.richText(v)}}
	case *ast.List:
		var out []Block
		for it := v.FirstChild(); it != nil; it = it.NextSibling() {
			out = append(out, c.listItem(it, v.IsOrdered()))
		}
		return out
	case *ast.Blockquote:
		return []Block{c.quote(v)}
	case *ast.FencedCodeBlock:
		return []Block{{
			Type:     BlockCode,
			RichText: TextSpans(c.lines(v.Lines())),
			Language: CodeLanguage(string(v.Language(c.src))),
		}}
	case *ast.CodeBlock:
		return []Block{{Type: BlockCode, RichText: TextSpans(c.lines(v.Lines())), Language: defaultLanguage}}
	case *ast.ThematicBreak:
		return []Block{{Type: BlockDivider}}
	case *ast.HTMLBlock:
		raw := c.lines(v.Lines())
		if v.HasClosure() {
			raw += "\n" + strings.TrimRight(string(v.ClosureLine.Value(c.src)), "\n")
		}
		return []Block{{Type: BlockParagraph, RichText: TextSpans(raw)}}
	default:
		if n.Type() == ast.TypeBlock && n.HasChildren() {
			return c.blocks(n)
		}
		return nil
	}
}

func (c *converter) listItem(item ast.Node, ordered bool) Block {
	b := Block{Type: BlockBulleted}
	if ordered {
		b.Type = BlockNumbered
	}
	first := item.FirstChild()
	if first != nil && (first.Kind() == ast.KindParagraph || first.Kind() == ast.KindTextBlock) {
		if box, ok := first.FirstChild().(*extast.TaskCheckBox); ok {
			b.Type = BlockToDo
			b.Checked = box.IsChecked
		}
		b.RichText = c.richText(first)
		first = first.NextSibling()
	} else {
		b.RichText = []RichText{}
	}
	for n := first; n != nil; n = n.NextSibling() {
		b.Children = append(b.Children, c.block(n)...)
	}
	return b
}

// quote folds the paragraphs of a blockquote into one rich text run separated
// by blank lines. Other nested blocks become children.
func (c *converter) quote(q *ast.Blockquote) Block {
	b := Block{Type: BlockQuote}
	var spans []RichText
	for n := q.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			b.Children = append(b.Children, c.block(n)...)
			continue
		}
		if len(spans) > 0 {
			spans = appendSpan(spans, Plain("\n\n"))
		}
		for _, s := range c.richText(n) {
			spans = appendSpan(spans, s)
		}
	}
	b.RichText = chunkSpans(spans)
	if b.RichText == nil {
		b.RichText = []RichText{}
	}
	return b
}

func (c *converter) lines(segs *text.Segments) string {
	var sb strings.Builder
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(c.src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *converter) richText(n ast.Node) []RichText {
	spans := c.inlines(n, inlineStyle{}, nil)
	spans = trimTrailingNewlines(spans)
	spans = chunkSpans(spans)
	if spans == nil {
		return []RichText{}
	}
	return spans
}

func (c *converter) inlines(parent ast.Node, st inlineStyle, spans []RichText) []RichText {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Text:
			spans = appendSpan(spans, st.span(string(v.Segment.Value(c.src))))
			if v.SoftLineBreak() || v.HardLineBreak() {
				spans = appendSpan(spans, st.span("\n"))
			}
		case *ast.String:
			spans = appendSpan(spans, st.span(string(v.Value)))
		case *ast.CodeSpan:
			inner := st
			inner.code = true
			spans = c.inlines(v, inner, spans)
		case *ast.Emphasis:
			inner := st
			if v.Level >= 2 {
				inner.bold = true
			} else {
				inner.italic = true
			}
			spans = c.inlines(v, inner, spans)
		case *extast.Strikethrough:
			inner := st
			inner.strike = true
			spans = c.inlines(v, inner, spans)
		case *ast.Link:
			inner := st
			inner.link = string(v.Destination)
			spans = c.inlines(v, inner, spans)
		case *ast.AutoLink:
			spans = appendSpan(spans, st.span("<"+string(v.Label(c.src))+">"))
		case *ast.Image:
			alt := PlainText(c.inlines(v, inlineStyle{}, nil))
			spans = appendSpan(spans, st.span("!["+alt+"]("+string(v.Destination)+")"))
		case *ast.RawHTML:
			var sb strings.Builder
			for i := 0; i < v.Segments.Len(); i++ {
				seg := v.Segments.At(i)
				sb.Write(seg.Value(c.src))
			}
			spans = appendSpan(spans, st.span(sb.String()))
		case *extast.TaskCheckBox:
			// Consumed by the enclosing list item.
		default:
			spans = c.inlines(v, st, spans)
		}
	}
	return spans
}

func trimTrailingNewlines(spans []RichText) []RichText {
	for len(spans) > 0 {
		last := &spans[len(spans)-1]
		if last.Raw != nil {
			return spans
		}
		last.Text = strings.TrimRight(last.Text, "\n")
		if last.Text != "" {
			return spans
		}
		spans = spans[:len(spans)-1]
	}
	return spans
}

var codeLanguages = map[string]string{
	"":           defaultLanguage,
	"text":       defaultLanguage,
	"plain":      defaultLanguage,
	"plaintext":  defaultLanguage,
	"plain text": defaultLanguage,
	"js":         "javascript",
	"javascript": "javascript",
	"jsx":        "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"typescript": "typescript",
	"py":         "python",
	"python":     "python",
	"go":         "go",
	"golang":     "go",
	"rs":         "rust",
	"rust":       "rust",
	"rb":         "ruby",
	"ruby":       "ruby",
	"java":       "java",
	"kotlin":     "kotlin",
	"kt":         "kotlin",
	"swift":      "swift",
	"c":          "c",
	"cpp":        "c++",
	"c++":        "c++",
	"cs":         "c#",
	"csharp":     "c#",
	"c#":         "c#",
	"php":        "php",
	"sh":         "shell",
	"shell":      "shell",
	"zsh":        "shell",
	"bash":       "bash",
	"ps1":        "powershell",
	"powershell": "powershell",
	"sql":        "sql",
	"html":       "html",
	"xml":        "xml",
	"css":        "css",
	"scss":       "scss",
	"json":       "json",
	"yml":        "yaml",
	"yaml":       "yaml",
	"toml":       "toml",
	"md":         "markdown",
	"markdown":   "markdown",
	"diff":       "diff",
	"docker":     "docker",
	"dockerfile": "docker",
	"graphql":    "graphql",
	"lua":        "lua",
	"mermaid":    "mermaid",
	"r":          "r",
	"scala":      "scala",
	"haskell":    "haskell",
	"elixir":     "elixir",
	"makefile":   "makefile",
	"protobuf":   "protobuf",
	"proto":      "protobuf",
}

// CodeLanguage maps a fence info string to a language name the backend
// accepts. Unrecognized languages fall back to plain text.
func CodeLanguage(info string) string {
	if lang, ok := codeLanguages[strings.ToLower(strings.TrimSpace(info))]; ok {
		return lang
	}
	return defaultLanguage
}
