package content

import (
	"encoding/json"
	"fmt"
)

// Block types understood by the mapper. Any other type is carried opaquely.
const (
	BlockParagraph  = "paragraph"
	BlockHeading1   = "heading_1"
	BlockHeading2   = "heading_2"
	BlockHeading3   = "heading_3"
	BlockBulleted   = "bulleted_list_item"
	BlockNumbered   = "numbered_list_item"
	BlockToDo       = "to_do"
	BlockQuote      = "quote"
	BlockCode       = "code"
	BlockDivider    = "divider"
	BlockToggle     = "toggle"
	BlockCallout    = "callout"
	defaultLanguage = "plain text"
)

var knownBlockTypes = map[string]bool{
	BlockParagraph: true,
	BlockHeading1:  true,
	BlockHeading2:  true,
	BlockHeading3:  true,
	BlockBulleted:  true,
	BlockNumbered:  true,
	BlockToDo:      true,
	BlockQuote:     true,
	BlockCode:      true,
	BlockDivider:   true,
	BlockToggle:    true,
	BlockCallout:   true,
}

// Block is a typed unit of page content. The type decides which fields are
// meaningful: Checked only for to_do, Language only for code. Blocks of a type
// the mapper does not understand keep their wire form in Raw and are written
// back unchanged.
type Block struct {
	ID          string
	Type        string
	RichText    []RichText
	Children    []Block
	HasChildren bool
	Checked     bool
	Language    string

	Raw json.RawMessage
}

// Known reports whether the block type is understood by the mapper.
func (b Block) Known() bool { return knownBlockTypes[b.Type] && b.Raw == nil }

// IsListItem reports whether the block renders as a markdown list item.
func (b Block) IsListItem() bool {
	switch b.Type {
	case BlockBulleted, BlockNumbered, BlockToDo:
		return true
	}
	return false
}

type wireBlockPayload struct {
	RichText []RichText `json:"rich_text"`
	Checked  *bool      `json:"checked,omitempty"`
	Language string     `json:"language,omitempty"`
	Children []Block    `json:"children,omitempty"`
}

// MarshalJSON encodes the block in the backend request shape, including
// nested children.
func (b Block) MarshalJSON() ([]byte, error) {
	if !b.Known() {
		if b.Raw == nil {
			return nil, fmt.Errorf("block type %q has no wire representation", b.Type)
		}
		return b.Raw, nil
	}
	var payload any
	switch b.Type {
	case BlockDivider:
		payload = struct{}{}
	default:
		p := wireBlockPayload{RichText: b.RichText, Children: b.Children}
		if p.RichText == nil {
			p.RichText = []RichText{}
		}
		if b.Type == BlockToDo {
			checked := b.Checked
			p.Checked = &checked
		}
		if b.Type == BlockCode {
			p.Language = b.Language
			if p.Language == "" {
				p.Language = defaultLanguage
			}
		}
		payload = p
	}
	return json.Marshal(map[string]any{
		"object": "block",
		"type":   b.Type,
		b.Type:   payload,
	})
}

// UnmarshalJSON decodes a backend block object. Children are not part of the
// backend read shape; they are attached by the caller after listing them.
func (b *Block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*b = Block{ID: head.ID, Type: head.Type, HasChildren: head.HasChildren}

	var payload struct {
		RichText []RichText `json:"rich_text"`
		Checked  bool       `json:"checked"`
		Language string     `json:"language"`
		Children []Block    `json:"children"`
	}
	if raw, ok := fields[head.Type]; ok && len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &payload); err != nil && knownBlockTypes[head.Type] {
			return fmt.Errorf("decode %s block: %w", head.Type, err)
		}
	}
	b.RichText = payload.RichText
	b.Children = payload.Children
	if !knownBlockTypes[head.Type] {
		b.Raw = append(json.RawMessage(nil), data...)
		return nil
	}
	b.Checked = payload.Checked
	b.Language = payload.Language
	return nil
}

// DecodeBlocks decodes a list of backend block objects in order.
func DecodeBlocks(items []json.RawMessage) ([]Block, error) {
	out := make([]Block, 0, len(items))
	for _, it := range items {
		var b Block
		if err := json.Unmarshal(it, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
