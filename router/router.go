// File: router/router.go
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/momentics/hiorest/xlog"
)

// MatchResult is the outcome of walking a Router against one request (spec
// §4.6). NoMatch means "keep searching"; the other three are terminal.
type MatchResult int

const (
	NoMatch MatchResult = iota
	Matched
	HandledAsync
	Error
)

func (m MatchResult) String() string {
	switch m {
	case Matched:
		return "matched"
	case HandledAsync:
		return "handled-async"
	case Error:
		return "error"
	default:
		return "no-match"
	}
}

// RestConnection is the capability spec §4.7 (C7) hands to a handler. The
// router depends only on this interface, never on a concrete restconn
// type, so router and restconn have no import-cycle between them.
type RestConnection interface {
	SendResponse(code int, body []byte, mediaType string)
	SendHTTPResponseHeader(code int, mediaType string, contentLength int64, headers Headers)
	SendPayload(data []byte)
	FinishResponse()
	ResponseSent() bool
}

// OnProcessRequest is a handler bound to a terminal Router (spec §4.6).
type OnProcessRequest func(conn RestConnection, req *Request, ctx *ParsingContext) MatchResult

// ErrBadRequest, when a handler panics with an error satisfying
// errors.Is(err, ErrBadRequest), is rendered as 400 instead of 500 — the
// RestRequestParsingException/generic-exception split the original
// maintains (original_source/service/http_exception.cc), which spec.md's
// distillation collapses to "a 500 response" but which SPEC_FULL.md
// restores (see SUPPLEMENTED FEATURES).
var ErrBadRequest = errors.New("router: bad request")

// Router is one node of the route tree (spec §4.6 "Tree"): an optional
// root handler, a description, a terminal flag, and ordered child Routes.
type Router struct {
	rootHandler OnProcessRequest
	description string
	terminal    bool
	routes      []Route
	logger      xlog.Logger
}

// New constructs an empty Router. terminal governs whether rootHandler (set
// via SetRootHandler) fires only when ParsingContext.Remaining is empty
// (spec §4.6 "Terminal policy").
func New(description string, terminal bool, logger xlog.Logger) *Router {
	if logger == nil {
		logger = xlog.Noop{}
	}
	return &Router{description: description, terminal: terminal, logger: logger}
}

// SetRootHandler installs the handler invoked when this router matches
// directly (no further path to consume, or non-terminal pass-through).
func (r *Router) SetRootHandler(h OnProcessRequest) { r.rootHandler = h }

// Description returns this router's help description.
func (r *Router) Description() string { return r.description }

// AddRoute registers a child route. verbs nil/empty matches any verb;
// params may be nil; child must not be nil (spec §3 Route always carries a
// child router, terminal leaves are just terminal child routers with a
// root handler and no sub-routes of their own).
func (r *Router) AddRoute(path PathSpec, verbs []string, params []ParamFilter, child *Router, extract Extractor) {
	r.routes = append(r.routes, Route{Path: path, Verbs: verbSet(verbs), Params: params, Router: child, Extract: extract})
}

// AddTerminal creates a terminal child router wrapping handler and appends
// a Route to it — the common case of "this path, these verbs, call this
// function" (original's addRoute(path, filter, description, cb, ...)
// overload).
func (r *Router) AddTerminal(path PathSpec, verbs []string, description string, handler OnProcessRequest) *Router {
	child := New(description, true, r.logger)
	child.rootHandler = handler
	r.AddRoute(path, verbs, nil, child, nil)
	return child
}

// AddSubRouter creates a non-terminal child router (a namespace node) and
// appends a Route to it, returning the child so the caller can populate it
// further (original's addSubRouter).
func (r *Router) AddSubRouter(path PathSpec, description string, extract Extractor) *Router {
	child := New(description, false, r.logger)
	r.AddRoute(path, nil, nil, child, extract)
	return child
}

// HandleRequest is the public entry point: build a fresh ParsingContext,
// walk the tree, and synthesize 404 if nothing matched (spec §4.6 "no route
// matches ... return 404" — note this 404 synthesis lives at the outermost
// call, not at every intermediate router, matching
// original_source/service/rest_request_router.cc's handleRequest/
// processRequest split: processRequest returns NoMatch and only the
// top-level entry point turns that into a 404 response).
func (r *Router) HandleRequest(conn RestConnection, req *Request) MatchResult {
	ctx := NewParsingContext(req.Resource)
	result := r.Process(conn, req, ctx)
	if result == NoMatch {
		conn.SendResponse(404, []byte(fmt.Sprintf("not found: %s %s", req.Verb, req.Resource)), "text/plain")
		return Matched
	}
	return result
}

// Process walks this router's route tree against req/ctx (spec §4.6
// Matching algorithm). Handler and route-recursion panics are caught here
// and turned into a 400 (ErrBadRequest) or 500 response, keeping the
// request resolved (spec §7 "Application handler exceptions yield a 500
// response but keep the connection alive").
func (r *Router) Process(conn RestConnection, req *Request, ctx *ParsingContext) MatchResult {
	if req.Verb == "OPTIONS" {
		return r.handleOptions(conn, ctx)
	}

	if r.rootHandler != nil && (!r.terminal || ctx.Remaining == "") {
		return r.invokeRoot(conn, req, ctx)
	}

	for i := range r.routes {
		route := &r.routes[i]
		snap := ctx.Save()
		result := r.processRoute(route, conn, req, ctx)
		ctx.Restore(snap)
		if result == Matched || result == HandledAsync || result == Error {
			return result
		}
	}
	return NoMatch
}

func (r *Router) invokeRoot(conn RestConnection, req *Request, ctx *ParsingContext) (result MatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportPanic(conn, ctx, rec)
			result = Matched
		}
	}()
	return r.rootHandler(conn, req, ctx)
}

func (r *Router) processRoute(route *Route, conn RestConnection, req *Request, ctx *ParsingContext) (result MatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportPanic(conn, ctx, rec)
			result = Matched
		}
	}()

	if !route.matchVerb(req) {
		return NoMatch
	}
	if !route.matchParams(req) {
		return NoMatch
	}
	if !route.Path.Match(ctx) {
		return NoMatch
	}
	if route.Extract != nil {
		route.Extract(conn, req, ctx)
	}
	if conn.ResponseSent() {
		return Matched
	}
	if route.Router == nil {
		return NoMatch
	}
	return route.Router.Process(conn, req, ctx)
}

func (r *Router) reportPanic(conn RestConnection, ctx *ParsingContext, rec any) {
	if err, ok := rec.(error); ok && errors.Is(err, ErrBadRequest) {
		r.logger.Warnf("router[trace=%s]: bad request: %v", ctx.TraceID, err)
		conn.SendResponse(400, []byte(err.Error()), "text/plain")
		return
	}
	r.logger.Errorf("router[trace=%s]: handler panic: %v", ctx.TraceID, rec)
	conn.SendResponse(500, []byte(fmt.Sprintf("internal error: %v", rec)), "text/plain")
}

// handleOptions synthesizes a response listing the verbs reachable at
// ctx.Remaining, from the verb filters of child routes (spec §4.6 "OPTIONS
// synthesis").
func (r *Router) handleOptions(conn RestConnection, ctx *ParsingContext) MatchResult {
	verbs := map[string]struct{}{}
	r.collectVerbs(ctx, verbs)

	if len(verbs) == 0 {
		conn.SendHTTPResponseHeader(400, "text/plain", 0, nil)
		conn.FinishResponse()
		return Matched
	}

	list := make([]string, 0, len(verbs))
	for v := range verbs {
		list = append(list, v)
	}
	sort.Strings(list)
	conn.SendHTTPResponseHeader(200, "text/plain", 0, Headers{{Key: "Allow", Value: strings.Join(list, ",")}})
	conn.FinishResponse()
	return Matched
}

func (r *Router) collectVerbs(ctx *ParsingContext, out map[string]struct{}) {
	for i := range r.routes {
		route := &r.routes[i]
		snap := ctx.Save()
		if route.Path.Match(ctx) {
			if ctx.Remaining == "" {
				for v := range route.Verbs {
					out[v] = struct{}{}
				}
			} else if route.Router != nil {
				route.Router.collectVerbs(ctx, out)
			}
		}
		ctx.Restore(snap)
	}
}
