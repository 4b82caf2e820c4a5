// Package hookrouter exposes one in-process hook.Hook implementation as an
// HTTP service consumable by hook.RemoteClient: one POST route per
// capability the hook actually implements, discovered the same way
// hook.LocalClient discovers capability — a type assertion against the
// matching *Processor interface, not a method list baked in by hand.
package hookrouter

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/civicteam/mcp-passthrough-proxy/hook"
)

// Router wraps one hook.Hook and renders it as a gin.Engine.
type Router struct {
	impl   hook.Hook
	log    *zap.Logger
	engine *gin.Engine
	routes []routeDescriptor
}

type routeDescriptor struct {
	path   string
	schema interface{} // the Go type whose jsonschema describes this route's request body
}

// New builds a Router over impl. Only routes for capabilities impl actually
// implements are registered; a remote caller probing an unregistered route
// gets a plain 404, which hook.RemoteClient already treats as "continue".
func New(impl hook.Hook, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{impl: impl, log: log.With(zap.String("hook", impl.Name()))}
	r.engine = gin.New()
	r.engine.Use(gin.Recovery())
	r.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.engine.GET("/schema", r.handleSchema)
	r.registerRoutes()
	return r
}

// Handler returns the http.Handler this Router serves.
func (r *Router) Handler() http.Handler { return r.engine }

func (r *Router) registerRoutes() {
	maybeRegister(r, "processInitializeRequest", requestBody{}, func(h hook.InitializeRequestProcessor, c *gin.Context, b requestBody) {
		r.respond(c, h.ProcessInitializeRequest(c.Request.Context(), b.Req, b.RequestContext.toHook()))
	})
	maybeRegister(r, "processInitializeResult", resultBody{}, func(h hook.InitializeResultProcessor, c *gin.Context, b resultBody) {
		r.respond(c, h.ProcessInitializeResult(c.Request.Context(), b.Result, b.OriginalRequest))
	})
	maybeRegister(r, "processListToolsRequest", requestBody{}, func(h hook.ListToolsRequestProcessor, c *gin.Context, b requestBody) {
		r.respond(c, h.ProcessListToolsRequest(c.Request.Context(), b.Req, b.RequestContext.toHook()))
	})
	maybeRegister(r, "processListToolsResult", resultBody{}, func(h hook.ListToolsResultProcessor, c *gin.Context, b resultBody) {
		r.respond(c, h.ProcessListToolsResult(c.Request.Context(), b.Result, b.OriginalRequest))
	})
	maybeRegister(r, "processCallToolRequest", requestBody{}, func(h hook.CallToolRequestProcessor, c *gin.Context, b requestBody) {
		r.respond(c, h.ProcessCallToolRequest(c.Request.Context(), b.Req, b.RequestContext.toHook()))
	})
	maybeRegister(r, "processCallToolResult", resultBody{}, func(h hook.CallToolResultProcessor, c *gin.Context, b resultBody) {
		r.respond(c, h.ProcessCallToolResult(c.Request.Context(), b.Result, b.OriginalRequest))
	})
	maybeRegister(r, "processOtherRequest", otherRequestBody{}, func(h hook.OtherRequestProcessor, c *gin.Context, b otherRequestBody) {
		r.respond(c, h.ProcessOtherRequest(c.Request.Context(), b.Method, b.Req, b.RequestContext.toHook()))
	})
	maybeRegister(r, "processOtherResult", otherResultBody{}, func(h hook.OtherResultProcessor, c *gin.Context, b otherResultBody) {
		r.respond(c, h.ProcessOtherResult(c.Request.Context(), b.Method, b.Result, b.OriginalRequest))
	})
	maybeRegister(r, "processTargetRequest", targetRequestBody{}, func(h hook.TargetRequestProcessor, c *gin.Context, b targetRequestBody) {
		r.respond(c, h.ProcessTargetRequest(c.Request.Context(), b.Method, b.Req))
	})
	maybeRegister(r, "processTargetResult", targetResultBody{}, func(h hook.TargetResultProcessor, c *gin.Context, b targetResultBody) {
		r.respond(c, h.ProcessTargetResult(c.Request.Context(), b.Method, b.Result, b.OriginalRequest))
	})
	maybeRegister(r, "processNotification", notificationBody{}, func(h hook.NotificationProcessor, c *gin.Context, b notificationBody) {
		r.respond(c, h.ProcessNotification(c.Request.Context(), b.Method, b.Notification))
	})
	maybeRegister(r, "processTargetNotification", notificationBody{}, func(h hook.TargetNotificationProcessor, c *gin.Context, b notificationBody) {
		r.respond(c, h.ProcessTargetNotification(c.Request.Context(), b.Method, b.Notification))
	})
	maybeRegister(r, "processCallToolTransportError", transportErrorBody{}, func(h hook.CallToolTransportErrorProcessor, c *gin.Context, b transportErrorBody) {
		r.respond(c, h.ProcessCallToolTransportError(c.Request.Context(), b.TransportError.toHook(), b.OriginalRequest))
	})
	maybeRegister(r, "processListToolsTransportError", transportErrorBody{}, func(h hook.ListToolsTransportErrorProcessor, c *gin.Context, b transportErrorBody) {
		r.respond(c, h.ProcessListToolsTransportError(c.Request.Context(), b.TransportError.toHook(), b.OriginalRequest))
	})
	maybeRegister(r, "processInitializeTransportError", transportErrorBody{}, func(h hook.InitializeTransportErrorProcessor, c *gin.Context, b transportErrorBody) {
		r.respond(c, h.ProcessInitializeTransportError(c.Request.Context(), b.TransportError.toHook(), b.OriginalRequest))
	})
}

// maybeRegister registers path only if r.impl satisfies P, discovered via a
// type assertion exactly like hook.LocalClient's capability probing. One
// generic helper serves all fifteen routes instead of fifteen near-
// identical assert-bind-handle blocks.
func maybeRegister[P any, B any](r *Router, path string, schemaType B, handle func(P, *gin.Context, B)) {
	h, ok := r.impl.(P)
	if !ok {
		return
	}
	r.routes = append(r.routes, routeDescriptor{path: path, schema: schemaType})
	r.engine.POST("/"+path, func(c *gin.Context) {
		var body B
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		handle(h, c, body)
	})
}

func (r *Router) respond(c *gin.Context, res hook.Result) {
	env := resultEnvelope{Verb: verbString(res.Verb)}
	switch res.Verb {
	case hook.VerbRespond, hook.VerbContinue:
		env.Payload = res.Payload
	case hook.VerbAbort:
		env.Reason = res.Reason
	}
	c.JSON(http.StatusOK, env)
}

func verbString(v hook.Verb) string {
	switch v {
	case hook.VerbRespond:
		return "respond"
	case hook.VerbAbort:
		return "abort"
	default:
		return "continue"
	}
}

func (r *Router) handleSchema(c *gin.Context) {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	out := make(map[string]interface{}, len(r.routes))
	for _, route := range r.routes {
		out[route.path] = reflector.Reflect(route.schema)
	}
	c.JSON(http.StatusOK, out)
}

// resultEnvelope is the wire shape hook.RemoteClient's decodeResult parses.
type resultEnvelope struct {
	Verb    string          `json:"verb"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

type wireRequestContext struct {
	RequestID string            `json:"requestId"`
	SessionID string            `json:"sessionId"`
	Headers   map[string]string `json:"headers"`
	Host      string            `json:"host"`
	Path      string            `json:"path"`
}

func (w *wireRequestContext) toHook() *hook.RequestContext {
	if w == nil {
		return nil
	}
	return &hook.RequestContext{
		RequestID: w.RequestID,
		SessionID: w.SessionID,
		Headers:   w.Headers,
		Host:      w.Host,
		Path:      w.Path,
	}
}

type requestBody struct {
	Req            json.RawMessage     `json:"req"`
	RequestContext *wireRequestContext `json:"requestContext,omitempty"`
}

type resultBody struct {
	Result          json.RawMessage `json:"result"`
	OriginalRequest json.RawMessage `json:"originalRequest"`
}

type otherRequestBody struct {
	Method         string              `json:"method"`
	Req            json.RawMessage     `json:"req"`
	RequestContext *wireRequestContext `json:"requestContext,omitempty"`
}

type otherResultBody struct {
	Method          string          `json:"method"`
	Result          json.RawMessage `json:"result"`
	OriginalRequest json.RawMessage `json:"originalRequest"`
}

type targetRequestBody struct {
	Method string          `json:"method"`
	Req    json.RawMessage `json:"req"`
}

type targetResultBody struct {
	Method          string          `json:"method"`
	Result          json.RawMessage `json:"result"`
	OriginalRequest json.RawMessage `json:"originalRequest"`
}

type notificationBody struct {
	Method       string          `json:"method"`
	Notification json.RawMessage `json:"notification"`
}

type wireTransportError struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	ResponseType string `json:"responseType"`
	StatusCode   int    `json:"statusCode"`
	Body         string `json:"body"`
}

func (w wireTransportError) toHook() hook.TransportErrorResult {
	return hook.TransportErrorResult{
		Code:         w.Code,
		Message:      w.Message,
		ResponseType: w.ResponseType,
		StatusCode:   w.StatusCode,
		Body:         []byte(w.Body),
	}
}

type transportErrorBody struct {
	TransportError  wireTransportError `json:"transportError"`
	OriginalRequest json.RawMessage    `json:"originalRequest"`
}
