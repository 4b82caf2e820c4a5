package endpoint

// ServerEndpoint faces the MCP client: it accepts client-originated methods
// (initialize, tools/list, tools/call, ...) and may itself send
// server-originated requests/notifications back to the client. It is a thin
// type-clarity wrapper over *Endpoint — all behavior is
// shared with ClientEndpoint.
type ServerEndpoint struct {
	*Endpoint
}

// NewServerEndpoint builds a ServerEndpoint.
func NewServerEndpoint() *ServerEndpoint {
	return &ServerEndpoint{Endpoint: New()}
}

// ClientEndpoint faces the target MCP server: it sends client-originated
// methods and accepts target-originated (server→client) requests.
type ClientEndpoint struct {
	*Endpoint
}

// NewClientEndpoint builds a ClientEndpoint.
func NewClientEndpoint() *ClientEndpoint {
	return &ClientEndpoint{Endpoint: New()}
}
