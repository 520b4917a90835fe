package content

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

// Page is the caller-facing view of a backend page.
type Page struct {
	ID            string                   `json:"id"`
	Object        string                   `json:"object,omitempty"`
	Title         string                   `json:"title"`
	TitleProperty string                   `json:"-"`
	URL           string                   `json:"url,omitempty"`
	ParentType    string                   `json:"parent_type,omitempty"`
	ParentID      string                   `json:"parent_id,omitempty"`
	Archived      bool                     `json:"archived,omitempty"`
	LastEdited    time.Time                `json:"last_edited_time"`
	Properties    map[string]PropertyValue `json:"properties,omitempty"`
}

// Database is the caller-facing view of a backend database and its schema.
type Database struct {
	ID         string
	Title      string
	URL        string
	Properties map[string]PropertySchema
}

// PropertySchema describes one database column. Options lists the allowed
// names for select, multi_select and status columns.
type PropertySchema struct {
	ID      string
	Name    string
	Type    string
	Options []string
}

type wireParent struct {
	Type       string `json:"type"`
	PageID     string `json:"page_id"`
	DatabaseID string `json:"database_id"`
	BlockID    string `json:"block_id"`
}

func (p wireParent) id() string {
	switch p.Type {
	case "page_id":
		return p.PageID
	case "database_id":
		return p.DatabaseID
	case "block_id":
		return p.BlockID
	}
	return ""
}

// DecodePage decodes a backend page object. Database objects returned by
// search decode too; their title comes from the top-level title array.
func DecodePage(data json.RawMessage) (Page, error) {
	var w struct {
		Object     string                     `json:"object"`
		ID         string                     `json:"id"`
		URL        string                     `json:"url"`
		Archived   bool                       `json:"archived"`
		InTrash    bool                       `json:"in_trash"`
		LastEdited time.Time                  `json:"last_edited_time"`
		Parent     wireParent                 `json:"parent"`
		Title      []RichText                 `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Page{}, errors.Wrap(err, "decode page")
	}
	p := Page{
		ID:         w.ID,
		Object:     w.Object,
		URL:        w.URL,
		Archived:   w.Archived || w.InTrash,
		LastEdited: w.LastEdited,
		ParentType: w.Parent.Type,
		ParentID:   w.Parent.id(),
		Properties: make(map[string]PropertyValue, len(w.Properties)),
	}
	if w.Object == "database" {
		p.Title = PlainText(w.Title)
	}
	for _, name := range sortedKeys(w.Properties) {
		v := FromPropertyValue(w.Properties[name])
		p.Properties[name] = v
		if v.Type == PropTitle && p.TitleProperty == "" {
			p.TitleProperty = name
			if w.Object != "database" {
				p.Title, _ = v.Value.(string)
			}
		}
	}
	return p, nil
}

// DecodePages decodes a list of backend page objects in order.
func DecodePages(items []json.RawMessage) ([]Page, error) {
	out := make([]Page, 0, len(items))
	for _, it := range items {
		p, err := DecodePage(it)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeDatabase decodes a backend database object including its schema.
func DecodeDatabase(data json.RawMessage) (Database, error) {
	var w struct {
		ID         string     `json:"id"`
		URL        string     `json:"url"`
		Title      []RichText `json:"title"`
		Properties map[string]struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Database{}, errors.Wrap(err, "decode database")
	}
	var raw struct {
		Properties map[string]map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Database{}, errors.Wrap(err, "decode database")
	}
	db := Database{
		ID:         w.ID,
		URL:        w.URL,
		Title:      PlainText(w.Title),
		Properties: make(map[string]PropertySchema, len(w.Properties)),
	}
	for name, p := range w.Properties {
		schema := PropertySchema{ID: p.ID, Name: name, Type: p.Type}
		if cfg, ok := raw.Properties[name][p.Type]; ok {
			var opts struct {
				Options []struct {
					Name string `json:"name"`
				} `json:"options"`
			}
			if json.Unmarshal(cfg, &opts) == nil {
				for _, o := range opts.Options {
					schema.Options = append(schema.Options, o.Name)
				}
			}
		}
		db.Properties[name] = schema
	}
	return db, nil
}

// TitleProperty returns the name of the database's title column.
func (d Database) TitleProperty() string {
	for _, name := range sortedKeys(d.Properties) {
		if d.Properties[name].Type == PropTitle {
			return name
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
