package hook

import (
	"context"
	"encoding/json"
)

// RequestVerdict is the tri-state outcome of ProcessRequest: Abort set,
// Respond set, or neither (continue).
type RequestVerdict struct {
	Abort   bool
	Reason  string
	Respond bool
	Request json.RawMessage // the request to forward (continue) or the synthesized response (respond); nil on abort
	Resume  Cursor          // where the matching response traversal must start
}

// ResponseVerdict is the outcome of processResponseThroughHooks.
type ResponseVerdict struct {
	Abort    bool
	Reason   string
	Response json.RawMessage
}

// RequestMethod names the Client.Process*Request method the processor
// should invoke on each node for this call, together with its mirror
// response-path method (RequestMethod.Response). Both request- and
// response-path processors are expressed in terms of one of these so
// ProcessRequest/ProcessResponse stay generic over the recognized methods
// (initialize, tools/list, tools/call) and the "other" catch-all.
type RequestMethod int

const (
	MethodInitialize RequestMethod = iota
	MethodListTools
	MethodCallTool
	MethodOther
	MethodTarget
)

// ProcessRequest walks
// the chain forward from head, invoking the method selected by which for
// each hook. rc is the request context passed to capability methods that
// accept one (nil for target-initiated requests, which have none).
func ProcessRequest(ctx context.Context, chain *Chain, which RequestMethod, method string, req json.RawMessage, rc *RequestContext) RequestVerdict {
	current := req
	terminal, resumeAt := chain.forward(chain.HeadCursor(), func(c Client) (Result, bool) {
		var res Result
		switch which {
		case MethodInitialize:
			res = c.ProcessInitializeRequest(ctx, current, rc)
		case MethodListTools:
			res = c.ProcessListToolsRequest(ctx, current, rc)
		case MethodCallTool:
			res = c.ProcessCallToolRequest(ctx, current, rc)
		case MethodOther:
			res = c.ProcessOtherRequest(ctx, method, current, rc)
		case MethodTarget:
			res = c.ProcessTargetRequest(ctx, method, current)
		}
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb != VerbContinue
	})

	switch terminal.Verb {
	case VerbAbort:
		return RequestVerdict{Abort: true, Reason: terminal.Reason}
	case VerbRespond:
		return RequestVerdict{Respond: true, Request: terminal.Payload, Resume: resumeAt}
	default:
		// Exhausted without a stop: resumeAt is the zero Cursor (tail
		// reached): the request continues with every hook's modifications
		// applied, and the response traversal starts at the tail.
		return RequestVerdict{Request: current, Resume: chain.TailCursor()}
	}
}

// ProcessResponse
// walk the chain backward from resume (inclusive), invoking the mirror
// response method for which.
func ProcessResponse(ctx context.Context, chain *Chain, which RequestMethod, resume Cursor, resp json.RawMessage, originalReq json.RawMessage) ResponseVerdict {
	current := resp
	terminal, _ := chain.reverse(resume, func(c Client) (Result, bool) {
		var res Result
		switch which {
		case MethodInitialize:
			res = c.ProcessInitializeResult(ctx, current, originalReq)
		case MethodListTools:
			res = c.ProcessListToolsResult(ctx, current, originalReq)
		case MethodCallTool:
			res = c.ProcessCallToolResult(ctx, current, originalReq)
		case MethodOther:
			res = c.ProcessOtherResult(ctx, "", current, originalReq)
		case MethodTarget:
			res = c.ProcessTargetResult(ctx, "", current, originalReq)
		}
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb == VerbAbort
	})

	if terminal.Verb == VerbAbort {
		return ResponseVerdict{Abort: true, Reason: terminal.Reason}
	}
	return ResponseVerdict{Response: current}
}

// ProcessOtherResponse is ProcessResponse specialized for the "other"
// catch-all, which carries the originating method name through to each
// hook (ProcessOtherResult takes method as an argument, unlike
// the fixed-method mirrors).
func ProcessOtherResponse(ctx context.Context, chain *Chain, method string, resume Cursor, resp json.RawMessage, originalReq json.RawMessage) ResponseVerdict {
	current := resp
	terminal, _ := chain.reverse(resume, func(c Client) (Result, bool) {
		res := c.ProcessOtherResult(ctx, method, current, originalReq)
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb == VerbAbort
	})
	if terminal.Verb == VerbAbort {
		return ResponseVerdict{Abort: true, Reason: terminal.Reason}
	}
	return ResponseVerdict{Response: current}
}

// ProcessTargetResponse mirrors ProcessOtherResponse for target-initiated
// requests, which also carry a method name.
func ProcessTargetResponse(ctx context.Context, chain *Chain, method string, resume Cursor, resp json.RawMessage, originalReq json.RawMessage) ResponseVerdict {
	current := resp
	terminal, _ := chain.reverse(resume, func(c Client) (Result, bool) {
		res := c.ProcessTargetResult(ctx, method, current, originalReq)
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb == VerbAbort
	})
	if terminal.Verb == VerbAbort {
		return ResponseVerdict{Abort: true, Reason: terminal.Reason}
	}
	return ResponseVerdict{Response: current}
}

// ProcessNotification walks the chain forward once, invoking
// ProcessNotification on each hook. A hook returning abort drops the
// notification silently, since notifications have no reply channel
// the caller should simply not forward it.
func ProcessNotification(ctx context.Context, chain *Chain, method string, notif json.RawMessage) (json.RawMessage, bool /* forward */) {
	current := notif
	terminal, _ := chain.forward(chain.HeadCursor(), func(c Client) (Result, bool) {
		res := c.ProcessNotification(ctx, method, current)
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb == VerbAbort
	})
	if terminal.Verb == VerbAbort {
		return nil, false
	}
	return current, true
}

// ProcessTargetNotification mirrors ProcessNotification for notifications
// originating at the target and forwarded to the client.
func ProcessTargetNotification(ctx context.Context, chain *Chain, method string, notif json.RawMessage) (json.RawMessage, bool) {
	current := notif
	terminal, _ := chain.forward(chain.HeadCursor(), func(c Client) (Result, bool) {
		res := c.ProcessTargetNotification(ctx, method, current)
		if res.Verb == VerbContinue {
			current = res.Payload
		}
		return res, res.Verb == VerbAbort
	})
	if terminal.Verb == VerbAbort {
		return nil, false
	}
	return current, true
}
