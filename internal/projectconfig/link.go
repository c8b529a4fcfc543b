package projectconfig

import "strings"

// BuildLink joins origin and path, carrying the current query string when
// withParams is set. If path already has a query, the leading '?' of search
// becomes '&'.
func BuildLink(origin, path, search string, withParams bool) string {
	link := origin + path
	if !withParams {
		return link
	}
	if strings.Contains(path, "?") && search != "" {
		return link + strings.Replace(search, "?", "&", 1)
	}
	return link + search
}
