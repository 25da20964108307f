// Package pagination implements opaque cursor paging for list methods.
//
// Cursors encode an offset into the registration-ordered list. Clients must
// treat them as opaque and only send back cursors the server returned:
//
//	page, next, err := pagination.Page(tools, params.Cursor, limit)
//	result := protocol.ListToolsResult{Tools: page}
//	result.NextCursor = next
package pagination
