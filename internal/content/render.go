package content

import (
	"strconv"
	"strings"
)

// FromBlocks renders blocks as markdown. Consecutive list items are joined by
// single newlines and all other blocks by blank lines, so text produced by
// ToBlocks renders back to the same markdown. Nested list children are
// indented under their item; children of other blocks follow their parent.
// Blocks of unknown type render their plain text and are skipped when they
// have none.
func FromBlocks(blocks []Block) string {
	var sb strings.Builder
	renderBlocks(&sb, blocks, "")
	return sb.String()
}

func renderBlocks(sb *strings.Builder, all []Block, indent string) {
	blocks := make([]Block, 0, len(all))
	for _, b := range all {
		if !b.Known() && PlainText(b.RichText) == "" && len(b.Children) == 0 {
			continue
		}
		blocks = append(blocks, b)
	}
	number := 0
	for i, b := range blocks {
		if i > 0 {
			prev := blocks[i-1]
			if prev.IsListItem() && b.IsListItem() {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		if b.Type == BlockNumbered {
			number++
		} else {
			number = 0
		}
		renderBlock(sb, b, indent, number)
	}
}

func renderBlock(sb *strings.Builder, b Block, indent string, number int) {
	switch b.Type {
	case BlockHeading1, BlockHeading2, BlockHeading3:
		level := int(b.Type[len(b.Type)-1] - '0')
		writeIndented(sb, strings.Repeat("#", level)+" "+renderSpans(b.RichText), indent, indent)
		renderChildren(sb, b, indent)
	case BlockBulleted, BlockNumbered, BlockToDo:
		marker := "- "
		switch b.Type {
		case BlockNumbered:
			marker = strconv.Itoa(number) + ". "
		case BlockToDo:
			if b.Checked {
				marker = "- [x] "
			} else {
				marker = "- [ ] "
			}
		}
		cont := indent + strings.Repeat(" ", len(marker))
		if b.Type == BlockToDo {
			cont = indent + "  "
		}
		writeIndented(sb, renderSpans(b.RichText), indent+marker, cont)
		if len(b.Children) > 0 {
			// A paragraph right under the item text would continue it lazily.
			if b.Children[0].IsListItem() {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
			renderBlocks(sb, b.Children, indent+"    ")
		}
	case BlockQuote:
		var inner strings.Builder
		inner.WriteString(renderSpans(b.RichText))
		if len(b.Children) > 0 {
			if inner.Len() > 0 {
				inner.WriteString("\n\n")
			}
			renderBlocks(&inner, b.Children, "")
		}
		for i, line := range strings.Split(inner.String(), "\n") {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(indent)
			if line == "" {
				sb.WriteString(">")
			} else {
				sb.WriteString("> " + line)
			}
		}
	case BlockCode:
		body := PlainText(b.RichText)
		fence := "```"
		for strings.Contains(body, fence) {
			fence += "`"
		}
		lang := b.Language
		if lang == defaultLanguage {
			lang = ""
		}
		sb.WriteString(indent + fence + strings.ReplaceAll(lang, " ", "-") + "\n")
		if body != "" {
			writeIndented(sb, body, indent, indent)
			sb.WriteString("\n")
		}
		sb.WriteString(indent + fence)
	case BlockDivider:
		sb.WriteString(indent + "---")
	default:
		writeIndented(sb, renderSpans(b.RichText), indent, indent)
		renderChildren(sb, b, indent)
	}
}

func renderChildren(sb *strings.Builder, b Block, indent string) {
	if len(b.Children) == 0 {
		return
	}
	sb.WriteString("\n\n")
	renderBlocks(sb, b.Children, indent)
}

func writeIndented(sb *strings.Builder, text, first, rest string) {
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			sb.WriteString(first)
		} else {
			sb.WriteString("\n")
			if line != "" {
				sb.WriteString(rest)
			}
		}
		sb.WriteString(line)
	}
}

// renderSpans renders spans with markdown inline markers. Code is innermost
// and links outermost; leading and trailing whitespace stays outside the
// markers so the result parses back to the same styles.
func renderSpans(spans []RichText) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(renderSpan(s))
	}
	return sb.String()
}

func renderSpan(s RichText) string {
	if s.Raw != nil || (!s.Bold && !s.Italic && !s.Strikethrough && !s.Code && s.Link == "") {
		return s.Text
	}
	core := strings.TrimSpace(s.Text)
	if core == "" {
		return s.Text
	}
	start := strings.Index(s.Text, core)
	lead, trail := s.Text[:start], s.Text[start+len(core):]

	if s.Code {
		core = codeSpan(core)
	}
	if s.Strikethrough {
		core = "~~" + core + "~~"
	}
	if s.Italic {
		core = "*" + core + "*"
	}
	if s.Bold {
		core = "**" + core + "**"
	}
	if s.Link != "" {
		core = "[" + core + "](" + linkDestination(s.Link) + ")"
	}
	return lead + core + trail
}

var bracketEscaper = strings.NewReplacer(`\`, `\\`, "<", `\<`, ">", `\>`)

// linkDestination writes dest bare when it parses back unchanged, and in
// angle brackets otherwise (spaces, unbalanced parentheses, escapes).
func linkDestination(dest string) string {
	depth := 0
	bare := dest != "" && dest[0] != '<'
	for _, r := range dest {
		if !bare {
			break
		}
		switch {
		case r <= ' ' || r == 0x7f || r == '\\':
			bare = false
		case r == '(':
			depth++
		case r == ')':
			depth--
			bare = depth >= 0
		}
	}
	if bare && depth == 0 {
		return dest
	}
	return "<" + bracketEscaper.Replace(dest) + ">"
}

func codeSpan(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	if strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") {
		return fence + " " + text + " " + fence
	}
	return fence + text + fence
}
