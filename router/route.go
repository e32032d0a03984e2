// File: router/route.go
package router

import "net/url"

// Header is one request header, case-insensitive by key (spec §3
// HttpRequest's "header list").
type Header struct{ Key, Value string }

// Headers is an ordered header list with case-insensitive Get.
type Headers []Header

// Get returns the first value for key, matched case-insensitively.
func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if equalFoldASCII(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Request is one incoming REST request (spec §3/§6). Resource is the full
// request path that seeds ParsingContext.Remaining.
type Request struct {
	Verb     string
	Resource string
	Query    url.Values
	Headers  Headers
	Body     []byte
}

// ParamLocation distinguishes a query-string filter from a header filter
// (spec §6 "Request matchers").
type ParamLocation int

const (
	ParamQuery ParamLocation = iota
	ParamHeader
)

// ParamFilter requires a particular query parameter or header to carry a
// specific value for a Route to match (spec §3 Route "parameter filters").
type ParamFilter struct {
	Location ParamLocation
	Key      string
	Value    string
}

// Extractor runs after a Route's verb/params/path all match, before
// recursing into the child router. It may attach an object to ctx (spec §3
// ParsingContext.objects) or emit an error response directly, in which case
// the router stops descending (spec §4.6: "conn.ResponseSent() ⇒ Matched").
type Extractor func(conn RestConnection, req *Request, ctx *ParsingContext)

// Route pairs a path spec, a verb/parameter filter, a child router, and an
// optional extractor hook (spec §3 Route). A terminal leaf handler is
// modeled, like the original, as a Route whose Router is itself terminal
// with no further sub-routes (see Router.AddTerminal).
type Route struct {
	Path    PathSpec
	Verbs   map[string]bool // nil/empty means "any verb"
	Params  []ParamFilter
	Router  *Router
	Extract Extractor
}

func verbSet(verbs []string) map[string]bool {
	if len(verbs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(verbs))
	for _, v := range verbs {
		m[v] = true
	}
	return m
}

func (rt *Route) matchVerb(req *Request) bool {
	if len(rt.Verbs) == 0 {
		return true
	}
	return rt.Verbs[req.Verb]
}

func (rt *Route) matchParams(req *Request) bool {
	for _, f := range rt.Params {
		switch f.Location {
		case ParamQuery:
			if req.Query == nil || req.Query.Get(f.Key) != f.Value {
				return false
			}
		case ParamHeader:
			v, ok := req.Headers.Get(f.Key)
			if !ok || v != f.Value {
				return false
			}
		}
	}
	return true
}
