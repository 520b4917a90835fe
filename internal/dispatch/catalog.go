package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/ggoodman/notion-mcp/mcp"
)

// Kind separates the two descriptor families of the catalog.
type Kind int

const (
	KindTool Kind = iota
	KindResource
)

func (k Kind) String() string {
	if k == KindResource {
		return "resource"
	}
	return "tool"
}

type handlerFunc func(ctx context.Context, env Env, args json.RawMessage) (any, error)

// Descriptor is one registered operation: its name, argument schema and
// handler. Resources additionally carry either a fixed URI or a URI template
// whose variables become the handler's arguments.
type Descriptor struct {
	Name        string
	Kind        Kind
	Description string
	URI         string
	URITemplate string
	MimeType    string
	// Write marks operations with backend side effects.
	Write bool

	schema  *jsonschema.Schema
	handler handlerFunc
	match   *regexp.Regexp
	vars    []string
}

// Schema returns the reflected argument schema.
func (d Descriptor) Schema() *jsonschema.Schema { return d.schema }

// Tool renders the descriptor as an MCP tool listing entry.
func (d Descriptor) Tool() mcp.Tool {
	return mcp.Tool{Name: d.Name, Description: d.Description, InputSchema: toInputSchema(d.schema)}
}

// Resource renders a fixed-URI resource listing entry.
func (d Descriptor) Resource() mcp.Resource {
	return mcp.Resource{URI: d.URI, Name: d.Name, Description: d.Description, MimeType: d.MimeType}
}

// Template renders a templated resource listing entry.
func (d Descriptor) Template() mcp.ResourceTemplate {
	return mcp.ResourceTemplate{URITemplate: d.URITemplate, Name: d.Name, Description: d.Description, MimeType: d.MimeType}
}

// Option configures a descriptor.
type Option func(*Descriptor)

// WithDescription sets the one-line description shown in listings.
func WithDescription(desc string) Option {
	return func(d *Descriptor) { d.Description = desc }
}

// WithWrite marks the operation as having backend side effects.
func WithWrite() Option {
	return func(d *Descriptor) { d.Write = true }
}

// WithMimeType sets the content type of a resource.
func WithMimeType(mt string) Option {
	return func(d *Descriptor) { d.MimeType = mt }
}

// NewTool builds a tool descriptor from a typed argument struct A. The schema
// is reflected from A; arguments are validated against it and then decoded
// into A before fn runs.
func NewTool[A any](name string, fn func(ctx context.Context, env Env, args A) (any, error), opts ...Option) Descriptor {
	d := Descriptor{Name: name, Kind: KindTool, schema: reflectSchema[A]()}
	for _, opt := range opts {
		opt(&d)
	}
	d.handler = typed(fn)
	return d
}

// NewResource builds a resource descriptor. uri is either a fixed URI or an
// RFC 6570 level 1 template such as notion://pages/{page_id}; template
// variables must be string fields of A.
func NewResource[A any](name, uri string, fn func(ctx context.Context, env Env, args A) (any, error), opts ...Option) Descriptor {
	d := Descriptor{Name: name, Kind: KindResource, MimeType: "text/markdown", schema: reflectSchema[A]()}
	if strings.Contains(uri, "{") {
		d.URITemplate = uri
		d.match, d.vars = compileTemplate(uri)
	} else {
		d.URI = uri
	}
	for _, opt := range opts {
		opt(&d)
	}
	d.handler = typed(fn)
	return d
}

func typed[A any](fn func(ctx context.Context, env Env, args A) (any, error)) handlerFunc {
	return func(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
		var a A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, invalidArguments("arguments: %v", err)
			}
		}
		return fn(ctx, env, a)
	}
}

// Catalog is the immutable set of registered operations. It is built once by
// NewCatalog and needs no locking afterwards.
type Catalog struct {
	byName    map[string]Descriptor
	tools     []Descriptor
	resources []Descriptor
}

// NewCatalog registers descs. Names must be unique across tools and resources.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" || d.handler == nil {
			return nil, fmt.Errorf("descriptor %q: missing name or handler", d.Name)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate operation name %q", d.Name)
		}
		if d.Kind == KindResource && d.URI == "" && d.URITemplate == "" {
			return nil, fmt.Errorf("resource %q: missing uri", d.Name)
		}
		c.byName[d.Name] = d
		if d.Kind == KindTool {
			c.tools = append(c.tools, d)
		} else {
			c.resources = append(c.resources, d)
		}
	}
	sort.Slice(c.tools, func(i, j int) bool { return c.tools[i].Name < c.tools[j].Name })
	sort.Slice(c.resources, func(i, j int) bool { return c.resources[i].Name < c.resources[j].Name })
	return c, nil
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Tools lists tool descriptors ordered by name.
func (c *Catalog) Tools() []Descriptor { return append([]Descriptor(nil), c.tools...) }

// Resources lists resource descriptors ordered by name.
func (c *Catalog) Resources() []Descriptor { return append([]Descriptor(nil), c.resources...) }

// ResolveURI maps a resource URI to the resource name and the arguments
// extracted from it.
func (c *Catalog) ResolveURI(uri string) (string, json.RawMessage, bool) {
	for _, d := range c.resources {
		if d.URI != "" && d.URI == uri {
			return d.Name, nil, true
		}
	}
	for _, d := range c.resources {
		if d.match == nil {
			continue
		}
		m := d.match.FindStringSubmatch(uri)
		if m == nil {
			continue
		}
		args := make(map[string]string, len(d.vars))
		for i, v := range d.vars {
			val, err := url.PathUnescape(m[i+1])
			if err != nil {
				val = m[i+1]
			}
			args[v] = val
		}
		raw, _ := json.Marshal(args)
		return d.Name, raw, true
	}
	return "", nil, false
}

var templateVar = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

func compileTemplate(tmpl string) (*regexp.Regexp, []string) {
	var pattern strings.Builder
	var vars []string
	pattern.WriteString("^")
	last := 0
	for _, loc := range templateVar.FindAllStringSubmatchIndex(tmpl, -1) {
		pattern.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		pattern.WriteString(`([^/?#]+)`)
		vars = append(vars, tmpl[loc[2]:loc[3]])
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(tmpl[last:]))
	pattern.WriteString("$")
	return regexp.MustCompile(pattern.String()), vars
}

// reflectSchema reflects A into an inline object schema that rejects unknown
// fields.
func reflectSchema[A any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	s.Version = ""
	return s
}

// toInputSchema down-converts a reflected schema to the simplified shape MCP
// listings carry.
func toInputSchema(s *jsonschema.Schema) mcp.ToolInputSchema {
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}
	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toProperty(el.Value)
		}
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   append([]string(nil), s.Required...),
	}
}

func toProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{Type: s.Type, Description: s.Description}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	p.Minimum = bound(s.Minimum)
	p.Maximum = bound(s.Maximum)
	if s.Type == "array" && s.Items != nil {
		item := toProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

func bound(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
