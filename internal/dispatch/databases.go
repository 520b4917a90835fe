package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/content"
	"github.com/ggoodman/notion-mcp/internal/errkind"
	"github.com/ggoodman/notion-mcp/internal/gateway"
)

// wireKeys are the keys a property value object carries in backend shape.
var wireKeys = map[string]bool{
	"title": true, "rich_text": true, "select": true, "status": true,
	"multi_select": true, "date": true, "checkbox": true, "number": true,
	"url": true, "email": true, "phone_number": true, "people": true,
	"relation": true, "files": true,
}

// encodeProperty turns a caller value into the backend shape for a property
// of type typ. Values already in backend shape ({"select":{"name":"x"}}) pass
// through when their key matches typ.
func encodeProperty(name, typ string, val any) (json.RawMessage, error) {
	if m, ok := val.(map[string]any); ok && len(m) == 1 {
		for key := range m {
			if key == typ {
				raw, err := json.Marshal(m)
				if err != nil {
					return nil, errkind.Mark(errors.Wrapf(err, "property %q", name), errkind.InvalidPropertyValue)
				}
				return raw, nil
			}
			if wireKeys[key] {
				return nil, errkind.New(errkind.InvalidPropertyValue, "property %q is a %s property, got a %s value", name, typ, key)
			}
		}
	}
	raw, err := content.ToPropertyValue(typ, val)
	if err != nil {
		return nil, errors.Wrapf(err, "property %q", name)
	}
	return raw, nil
}

// encodeProperties encodes values by name using types. Names missing from
// types fail with unknown(name).
func encodeProperties(values map[string]any, types map[string]string, unknown func(string) error) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values)+1)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		typ, ok := types[name]
		if !ok {
			return nil, unknown(name)
		}
		raw, err := encodeProperty(name, typ, values[name])
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

type createEntryArgs struct {
	DatabaseID string         `json:"database_id" jsonschema_description:"ID of the database to add an entry to."`
	Properties map[string]any `json:"properties" jsonschema_description:"Property values keyed by column name. Simple values (\"Todo\", true, 3, \"2024-12-31\") are encoded using the database schema; values already in backend shape such as {\"select\":{\"name\":\"Todo\"}} are sent as is."`
	Content    string         `json:"content,omitempty" jsonschema_description:"Optional page body as markdown."`
}

func createDatabaseEntry(ctx context.Context, env Env, args createEntryArgs) (any, error) {
	db, err := env.Backend.GetDatabase(ctx, args.DatabaseID)
	if err != nil {
		return nil, err
	}
	types := make(map[string]string, len(db.Properties))
	for name, p := range db.Properties {
		types[name] = p.Type
	}
	props, err := encodeProperties(args.Properties, types, func(name string) error {
		err := errkind.New(errkind.InvalidRequest, "database %s has no property %q", args.DatabaseID, name)
		return errors.WithHintf(err, "Available properties: %s.", strings.Join(columnNames(db), ", "))
	})
	if err != nil {
		return nil, err
	}

	page, err := env.Backend.CreatePage(ctx, gateway.Parent{DatabaseID: args.DatabaseID}, props, content.ToBlocks(args.Content))
	if err != nil {
		return nil, err
	}
	return pageResult{
		PageID:   page.ID,
		URL:      page.URL,
		Title:    page.Title,
		ParentID: args.DatabaseID,
		Message:  "Database entry created",
	}, nil
}

func columnNames(db content.Database) []string {
	names := make([]string, 0, len(db.Properties))
	for name := range db.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type queryDatabaseArgs struct {
	DatabaseID string           `json:"database_id" jsonschema_description:"ID of the database to query."`
	Filter     map[string]any   `json:"filter,omitempty" jsonschema_description:"Filter object in backend syntax, e.g. {\"property\":\"Done\",\"checkbox\":{\"equals\":false}}."`
	Sorts      []map[string]any `json:"sorts,omitempty" jsonschema_description:"Sort objects in backend syntax."`
	MaxResults int              `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=1000" jsonschema_description:"Maximum number of entries to return (default 100)."`
}

func queryDatabase(ctx context.Context, env Env, args queryDatabaseArgs) (any, error) {
	var filter, sorts json.RawMessage
	var err error
	if len(args.Filter) > 0 {
		if filter, err = json.Marshal(args.Filter); err != nil {
			return nil, invalidArguments("field %q: %v", "filter", err)
		}
	}
	if len(args.Sorts) > 0 {
		if sorts, err = json.Marshal(args.Sorts); err != nil {
			return nil, invalidArguments("field %q: %v", "sorts", err)
		}
	}
	n := args.MaxResults
	if n <= 0 {
		n = 100
	}
	pages, truncated, err := env.Backend.QueryDatabase(ctx, args.DatabaseID, filter, sorts, n)
	if err != nil {
		return nil, err
	}
	results := summarize(pages, true)
	return pageList{Count: len(results), Results: results, Truncated: truncated}, nil
}
