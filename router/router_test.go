package router_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/momentics/hiorest/restconn"
	"github.com/momentics/hiorest/router"
)

func newRequest(verb, resource string) *router.Request {
	return &router.Request{Verb: verb, Resource: resource, Query: url.Values{}}
}

// TestRouteDispatch covers spec §8 scenario 3: ("/v1", any) → ("/items",
// GET) → terminal handler; GET /v1/items reaches the handler with
// resources=["/v1","/items"] and remaining=""; GET /v1/other is a 404.
func TestRouteDispatch(t *testing.T) {
	root := router.New("root", false, nil)
	v1 := root.AddSubRouter(router.Literal("/v1"), "v1 namespace", nil)

	var gotResources []string
	var gotRemaining string
	v1.AddTerminal(router.Literal("/items"), []string{"GET"}, "list items", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		gotResources = append([]string(nil), ctx.Resources...)
		gotRemaining = ctx.Remaining
		conn.SendResponse(200, []byte("ok"), "text/plain")
		return router.Matched
	})

	conn := restconn.NewInProcess()
	result := root.HandleRequest(conn, newRequest("GET", "/v1/items"))
	if result != router.Matched {
		t.Fatalf("expected Matched, got %v", result)
	}
	if code, _, _, _ := conn.Result(); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if strings.Join(gotResources, ",") != "/v1,/items" {
		t.Fatalf("expected resources [/v1 /items], got %v", gotResources)
	}
	if gotRemaining != "" {
		t.Fatalf("expected empty remaining, got %q", gotRemaining)
	}

	conn2 := restconn.NewInProcess()
	root.HandleRequest(conn2, newRequest("GET", "/v1/other"))
	if code, _, _, _ := conn2.Result(); code != 404 {
		t.Fatalf("expected 404, got %d", code)
	}
}

// TestRegexCapture covers spec §8 scenario 4: Rx("/items/([0-9]+)", "id")
// under /v1; GET /v1/items/42 captures resources containing "/items/42" and
// "42".
func TestRegexCapture(t *testing.T) {
	root := router.New("root", false, nil)
	v1 := root.AddSubRouter(router.Literal("/v1"), "v1 namespace", nil)

	var gotResources []string
	v1.AddTerminal(router.Rx(`^/items/([0-9]+)`, "/items/<id>"), []string{"GET"}, "get item", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		gotResources = append([]string(nil), ctx.Resources...)
		conn.SendResponse(200, []byte("ok"), "text/plain")
		return router.Matched
	})

	conn := restconn.NewInProcess()
	root.HandleRequest(conn, newRequest("GET", "/v1/items/42"))

	foundMatch, foundCapture := false, false
	for _, r := range gotResources {
		if r == "/items/42" {
			foundMatch = true
		}
		if r == "42" {
			foundCapture = true
		}
	}
	if !foundMatch || !foundCapture {
		t.Fatalf("expected resources to include /items/42 and 42, got %v", gotResources)
	}
}

// TestOptionsSynthesis covers spec §8 scenario 6: a router with child
// routes for GET /x and POST /x; OPTIONS /x returns 200 with
// Allow: GET,POST (verb set, any order).
func TestOptionsSynthesis(t *testing.T) {
	root := router.New("root", false, nil)
	root.AddTerminal(router.Literal("/x"), []string{"GET"}, "get x", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		conn.SendResponse(200, nil, "text/plain")
		return router.Matched
	})
	root.AddTerminal(router.Literal("/x"), []string{"POST"}, "post x", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		conn.SendResponse(200, nil, "text/plain")
		return router.Matched
	})

	conn := restconn.NewInProcess()
	result := root.HandleRequest(conn, newRequest("OPTIONS", "/x"))
	if result != router.Matched {
		t.Fatalf("expected Matched, got %v", result)
	}
	code, _, _, headers := conn.Result()
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	allow, ok := headers.Get("Allow")
	if !ok {
		t.Fatalf("expected Allow header")
	}
	parts := strings.Split(allow, ",")
	seen := map[string]bool{}
	for _, p := range parts {
		seen[p] = true
	}
	if !seen["GET"] || !seen["POST"] {
		t.Fatalf("expected Allow to contain GET and POST, got %q", allow)
	}
}

// TestBadRequestPanicIsClassified400 exercises the ErrBadRequest panic
// classification path (SPEC_FULL.md supplemented feature: 400/500
// exception split).
func TestBadRequestPanicIsClassified400(t *testing.T) {
	root := router.New("root", false, nil)
	root.AddTerminal(router.Literal("/bad"), []string{"GET"}, "always bad", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		panic(router.ErrBadRequest)
	})

	conn := restconn.NewInProcess()
	root.HandleRequest(conn, newRequest("GET", "/bad"))
	if code, _, _, _ := conn.Result(); code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
}

// TestGenericPanicIsClassified500 exercises the fallback panic path.
func TestGenericPanicIsClassified500(t *testing.T) {
	root := router.New("root", false, nil)
	root.AddTerminal(router.Literal("/boom"), []string{"GET"}, "always panics", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		panic("kaboom")
	})

	conn := restconn.NewInProcess()
	root.HandleRequest(conn, newRequest("GET", "/boom"))
	if code, _, _, _ := conn.Result(); code != 500 {
		t.Fatalf("expected 500, got %d", code)
	}
}
