package proxy

import (
	"net/http"
	"strings"
)

// excludedHeaders is the hop-by-hop set spec.md §4.F names; these are
// stripped both from the request forwarded upstream and from the
// response relayed back to the client.
var excludedHeaders = map[string]bool{
	"host":                true,
	"content-length":      true,
	"connection":          true,
	"upgrade":             true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
}

// copyFilteredHeaders copies every header from src to dst except the
// hop-by-hop set.
func copyFilteredHeaders(dst, src http.Header) {
	for key, values := range src {
		if excludedHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
