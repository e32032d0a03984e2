// File: router/help.go
package router

import jsoniter "github.com/json-iterator/go"

var helpJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RouteDoc is a structured, introspectable description of one router node
// (spec's SUPPLEMENTED FEATURES: "router help/introspection as structured
// data" — the original only renders HTML help pages; SPEC_FULL.md asks for
// a machine-readable form too, rendered with json-iterator by RenderJSON).
type RouteDoc struct {
	Description string     `json:"description"`
	Terminal    bool       `json:"terminal"`
	Routes      []RouteRef `json:"routes,omitempty"`
}

// RouteRef names one child route's path description, allowed verbs, and the
// child router's own doc.
type RouteRef struct {
	Path  string   `json:"path"`
	Verbs []string `json:"verbs,omitempty"`
	Child RouteDoc `json:"child"`
}

// Describe walks r's route tree and builds a RouteDoc snapshot, suitable
// for serving at an introspection endpoint. server/ does not wire such an
// endpoint itself.
func (r *Router) Describe() RouteDoc {
	doc := RouteDoc{Description: r.description, Terminal: r.terminal}
	for i := range r.routes {
		route := &r.routes[i]
		ref := RouteRef{Path: route.Path.Desc()}
		for v := range route.Verbs {
			ref.Verbs = append(ref.Verbs, v)
		}
		if route.Router != nil {
			ref.Child = route.Router.Describe()
		}
		doc.Routes = append(doc.Routes, ref)
	}
	return doc
}

// RenderJSON serializes a RouteDoc tree for a help/introspection response.
func RenderJSON(doc RouteDoc) ([]byte, error) {
	return helpJSON.Marshal(doc)
}
