package guard

import (
	"strings"

	"knowshare/internal/session"
)

// Table is an ordered list of routes. The first match wins; unmatched
// paths are Public.
type Table []Route

// Match returns the first route whose pattern covers path.
func (t Table) Match(path string) Route {
	for _, r := range t {
		if matchPrefix(r.Pattern, path) {
			return r
		}
	}
	return Route{Pattern: path, Access: Access{Kind: Public}}
}

// matchPrefix is a segment-aware prefix match: "/admin" matches "/admin"
// and "/admin/users" but not "/administrator". "/" matches only "/".
func matchPrefix(pattern, path string) bool {
	if pattern == "/" {
		return path == "/" || path == ""
	}
	pattern = strings.TrimRight(pattern, "/")
	if !strings.HasPrefix(path, pattern) {
		return false
	}
	rest := path[len(pattern):]
	return rest == "" || rest[0] == '/'
}

// PageTable mirrors the application's page routes.
func PageTable() Table {
	employee := NotRoles(session.RoleAdmin)
	return Table{
		{Pattern: "/auth/login", Access: Access{Kind: GuestOnly}},
		{Pattern: "/auth/register", Access: Access{Kind: GuestOnly}},
		{Pattern: "/unauthorized", Access: Access{Kind: Public}},
		{Pattern: "/admin", Access: Roles(session.RoleAdmin)},
		{Pattern: "/documents", Access: employee},
		{Pattern: "/search", Access: employee},
		{Pattern: "/favorites", Access: employee},
		{Pattern: "/notifications", Access: employee},
		{Pattern: "/profile", Access: employee},
		{Pattern: "/", Access: Access{Kind: Public}},
	}
}

// APITable gates the proxied REST surface.
func APITable() Table {
	return Table{
		{Pattern: "/api/admin", Access: Roles(session.RoleAdmin)},
		{Pattern: "/api", Access: Access{Kind: Authenticated}},
	}
}
