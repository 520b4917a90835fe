package dispatch

// Operation names of the built-in catalog.
const (
	ToolCreatePage          = "create_page"
	ToolUpdatePage          = "update_page"
	ToolSearchPages         = "search_pages"
	ToolAppendToPage        = "append_to_page"
	ToolCreateDatabaseEntry = "create_database_entry"
	ToolGetPageContent      = "get_page_content"
	ToolQueryDatabase       = "query_database"

	ResourceRecentPages = "recent_pages"
	ResourcePageContent = "page_content"
)

// Builtin returns the catalog of Notion tools and resources.
func Builtin() *Catalog {
	c, err := NewCatalog(
		NewTool(ToolCreatePage, createPage, WithWrite(),
			WithDescription("Create a Notion page with a title and markdown content.")),
		NewTool(ToolUpdatePage, updatePage, WithWrite(),
			WithDescription("Update a page's title or properties, or archive it.")),
		NewTool(ToolSearchPages, searchPages,
			WithDescription("Search pages shared with the integration by title.")),
		NewTool(ToolAppendToPage, appendToPage, WithWrite(),
			WithDescription("Append markdown content to the end of a page.")),
		NewTool(ToolCreateDatabaseEntry, createDatabaseEntry, WithWrite(),
			WithDescription("Create an entry in a database from property values keyed by column name.")),
		NewTool(ToolGetPageContent, getPageContent,
			WithDescription("Read a page's title and its content as markdown.")),
		NewTool(ToolQueryDatabase, queryDatabase,
			WithDescription("List database entries matching an optional filter.")),
		NewResource(ResourceRecentPages, "notion://recent-pages", recentPages,
			WithDescription("The 20 most recently edited pages.")),
		NewResource(ResourcePageContent, "notion://pages/{page_id}", pageContentResource,
			WithDescription("A page rendered as markdown.")),
	)
	if err != nil {
		panic(err)
	}
	return c
}
