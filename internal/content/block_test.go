package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockMarshalRequestShape(t *testing.T) {
	blocks := []Block{
		{Type: BlockToDo, RichText: []RichText{{Text: "ship", Bold: true, Link: "https://example.com"}}},
		{Type: BlockCode, RichText: TextSpans("x := 1")},
		{Type: BlockDivider},
		{Type: BlockBulleted, RichText: TextSpans("parent"), Children: []Block{
			{Type: BlockBulleted, RichText: TextSpans("child")},
		}},
	}
	got, err := json.Marshal(blocks)
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"object":"block","type":"to_do","to_do":{"checked":false,"rich_text":[
			{"type":"text","text":{"content":"ship","link":{"url":"https://example.com"}},"annotations":{"bold":true}}
		]}},
		{"object":"block","type":"code","code":{"language":"plain text","rich_text":[
			{"type":"text","text":{"content":"x := 1"}}
		]}},
		{"object":"block","type":"divider","divider":{}},
		{"object":"block","type":"bulleted_list_item","bulleted_list_item":{
			"rich_text":[{"type":"text","text":{"content":"parent"}}],
			"children":[{"object":"block","type":"bulleted_list_item","bulleted_list_item":{
				"rich_text":[{"type":"text","text":{"content":"child"}}]
			}}]
		}}
	]`, string(got))
}

func TestUnknownBlockPassesThrough(t *testing.T) {
	raw := `{"object":"block","id":"b1","type":"synced_block","has_children":true,` +
		`"synced_block":{"synced_from":null,"rich_text":[{"type":"text","text":{"content":"kept"},"plain_text":"kept"}]}}`

	var b Block
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	assert.False(t, b.Known())
	assert.Equal(t, "b1", b.ID)
	assert.True(t, b.HasChildren)
	assert.Equal(t, "kept", PlainText(b.RichText))

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestDecodeBlocksFromBackend(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"object":"block","id":"1","type":"heading_2","heading_2":{"rich_text":[
			{"type":"text","text":{"content":"Notes","link":null},"annotations":{"bold":false,"italic":false,"strikethrough":false,"underline":false,"code":false,"color":"default"},"plain_text":"Notes","href":null}
		],"is_toggleable":false}}`),
		json.RawMessage(`{"object":"block","id":"2","type":"to_do","to_do":{"checked":true,"rich_text":[]}}`),
		json.RawMessage(`{"object":"block","id":"3","type":"code","code":{"language":"go","rich_text":[
			{"type":"text","text":{"content":"package main"},"plain_text":"package main"}
		]}}`),
	}
	blocks, err := DecodeBlocks(items)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, []RichText{{Text: "Notes"}}, blocks[0].RichText)
	assert.True(t, blocks[1].Checked)
	assert.Equal(t, "go", blocks[2].Language)
	assert.Equal(t, "## Notes\n\n- [x] \n\n```go\npackage main\n```", FromBlocks(blocks))
}

func TestRichTextMentionKeepsRaw(t *testing.T) {
	raw := `{"type":"mention","mention":{"type":"user","user":{"id":"u1"}},"annotations":{"bold":true},"plain_text":"@Ada","href":null}`
	var r RichText
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, "@Ada", r.Text)
	assert.True(t, r.Bold)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestTextSpansChunking(t *testing.T) {
	assert.Equal(t, []RichText{}, TextSpans(""))

	long := make([]byte, MaxTextLength*2+1)
	for i := range long {
		long[i] = 'a'
	}
	spans := TextSpans(string(long))
	require.Len(t, spans, 3)
	assert.Len(t, spans[2].Text, 1)
	assert.Equal(t, string(long), PlainText(spans))
}

func TestDecodePage(t *testing.T) {
	raw := json.RawMessage(`{
		"object":"page","id":"p1","url":"https://www.notion.so/p1","archived":false,
		"last_edited_time":"2024-05-01T10:00:00.000Z",
		"parent":{"type":"database_id","database_id":"db1"},
		"properties":{
			"Name":{"id":"title","type":"title","title":[{"type":"text","text":{"content":"Launch"},"plain_text":"Launch"}]},
			"Status":{"id":"s","type":"select","select":{"id":"x","name":"Todo","color":"red"}},
			"Owner":{"id":"o","type":"people","people":[]}
		}
	}`)
	p, err := DecodePage(raw)
	require.NoError(t, err)

	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Launch", p.Title)
	assert.Equal(t, "Name", p.TitleProperty)
	assert.Equal(t, "database_id", p.ParentType)
	assert.Equal(t, "db1", p.ParentID)
	assert.Equal(t, 2024, p.LastEdited.Year())
	assert.Equal(t, PropertyValue{Type: PropSelect, Value: "Todo", Wire: "select"}, p.Properties["Status"])
	assert.Equal(t, PropUnknown, p.Properties["Owner"].Type)
	assert.Equal(t, "people", p.Properties["Owner"].Wire)
}

func TestDecodeDatabase(t *testing.T) {
	raw := json.RawMessage(`{
		"object":"database","id":"db1",
		"title":[{"type":"text","text":{"content":"Tasks"},"plain_text":"Tasks"}],
		"properties":{
			"Name":{"id":"title","name":"Name","type":"title","title":{}},
			"Priority":{"id":"p","name":"Priority","type":"select","select":{"options":[{"name":"High"},{"name":"Low"}]}},
			"Done":{"id":"d","name":"Done","type":"checkbox","checkbox":{}}
		}
	}`)
	db, err := DecodeDatabase(raw)
	require.NoError(t, err)

	assert.Equal(t, "Tasks", db.Title)
	assert.Equal(t, "Name", db.TitleProperty())
	assert.Equal(t, []string{"High", "Low"}, db.Properties["Priority"].Options)
	assert.Equal(t, PropCheckbox, db.Properties["Done"].Type)
}
