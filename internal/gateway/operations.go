package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// Operation describes one backend endpoint. Write operations are not
// idempotent and are retried only when no request bytes reached the wire.
// Paginated operations follow the cursor until exhausted.
type Operation struct {
	Name      string
	Method    string
	Path      string
	Write     bool
	Paginated bool
}

// Operation names accepted by Execute.
const (
	OpSearch               = "search"
	OpGetPage              = "pages.get"
	OpCreatePage           = "pages.create"
	OpUpdatePage           = "pages.update"
	OpListBlockChildren    = "blocks.children.list"
	OpAppendBlockChildren  = "blocks.children.append"
	OpGetDatabase          = "databases.get"
	OpQueryDatabase        = "databases.query"
	idPlaceholder          = "{id}"
	maxPageSize            = 100
	maxChildrenPerRequest  = 100
	defaultChildrenDepth   = 3
	defaultRecentPageCount = 20
)

var operations = map[string]Operation{
	OpSearch:              {Name: OpSearch, Method: http.MethodPost, Path: "/search", Paginated: true},
	OpGetPage:             {Name: OpGetPage, Method: http.MethodGet, Path: "/pages/{id}"},
	OpCreatePage:          {Name: OpCreatePage, Method: http.MethodPost, Path: "/pages", Write: true},
	OpUpdatePage:          {Name: OpUpdatePage, Method: http.MethodPatch, Path: "/pages/{id}", Write: true},
	OpListBlockChildren:   {Name: OpListBlockChildren, Method: http.MethodGet, Path: "/blocks/{id}/children", Paginated: true},
	OpAppendBlockChildren: {Name: OpAppendBlockChildren, Method: http.MethodPatch, Path: "/blocks/{id}/children", Write: true},
	OpGetDatabase:         {Name: OpGetDatabase, Method: http.MethodGet, Path: "/databases/{id}"},
	OpQueryDatabase:       {Name: OpQueryDatabase, Method: http.MethodPost, Path: "/databases/{id}/query", Paginated: true},
}

// LookupOperation returns the operation registered under name.
func LookupOperation(name string) (Operation, bool) {
	op, ok := operations[name]
	return op, ok
}

func (op Operation) path(id string) string {
	return strings.ReplaceAll(op.Path, idPlaceholder, url.PathEscape(id))
}

func (op Operation) needsID() bool {
	return strings.Contains(op.Path, idPlaceholder)
}
