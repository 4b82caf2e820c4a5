package session

import "net/http"

// hopByHop lists the RFC 7230 §6.1 connection-scoped headers that must
// never be forwarded by an intermediary.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// mcpReserved lists additional headers the proxy itself manages and that
// must not leak through unmodified to the target.
var mcpReserved = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Content-Type":      true,
	"Accept":            true,
	"Accept-Encoding":   true,
	"Cookie":            true,
	"Set-Cookie":        true,
	"Mcp-Session-Id":    true,
	"Mcp-Protocol-Version": true,
	"Last-Event-Id":     true,
}

// filterHeaders returns a copy of in with hop-by-hop and MCP-reserved
// headers dropped. If authToken is non-empty, Authorization is replaced
// with it; otherwise any incoming Authorization is forwarded as-is.
func filterHeaders(in http.Header, authToken string) http.Header {
	out := make(http.Header, len(in))
	for k, vs := range in {
		canonical := http.CanonicalHeaderKey(k)
		if hopByHop[canonical] || mcpReserved[canonical] {
			continue
		}
		out[canonical] = append([]string(nil), vs...)
	}
	if authToken != "" {
		out.Set("Authorization", "Bearer "+authToken)
	}
	return out
}
