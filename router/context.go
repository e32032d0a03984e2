// Package router implements the hierarchical REST router described in spec
// §4.6 (C6): a tree of path/verb matchers that threads a ParsingContext
// through child routers and dispatches to terminal handlers.
//
// Grounded on searchktools-fast-server/core/router/radix.go's
// tree-of-nodes-with-handlers Go shape (node/children, Add/Find naming),
// generalized from radix-by-byte matching to the literal/regex path-spec
// walk with verb/parameter filters and context save/restore described in
// original_source/service/rest_request_router.cc.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package router

import "github.com/momentics/hiorest/xlog"

// ParsingContext threads per-request matching state through the route tree
// (spec §3 ParsingContext): the unmatched suffix of the URL path, the
// ordered resources captured so far, and a stack of extractor-attached
// objects. This replaces the original's type-erased RTTI object stack
// (REDESIGN FLAG, spec §9) with a Go-typed, tag-keyed entry list — no
// reflection, no global registry.
//
// TraceID is an ambient observability concern carried regardless of the
// metrics Non-goal (spec §1): a short per-request identifier, generated
// once in NewParsingContext, threaded through handler logging and into the
// 400/500 panic boundary (see Router.reportPanic).
type ParsingContext struct {
	Remaining string
	Resources []string
	Objects   []ObjectEntry
	TraceID   string
}

// ObjectEntry is one extractor-attached payload, keyed by a caller-chosen
// tag (in place of C++ RTTI's typeid) plus an optional destructor run when
// the entry is popped by Restore.
type ObjectEntry struct {
	Tag     string
	Value   any
	Destroy func()
}

// State is a scoped snapshot produced by Save and consumed by Restore, so
// that one route's failed match cannot corrupt a sibling route's matching
// (spec §3 "Supports save/restore").
type State struct {
	remaining    string
	resourcesLen int
	objectsLen   int
}

// NewParsingContext seeds a context with resource as the full path still to
// be matched.
func NewParsingContext(resource string) *ParsingContext {
	return &ParsingContext{Remaining: resource, TraceID: xlog.WithTraceID()}
}

// Save captures the current context shape.
func (c *ParsingContext) Save() State {
	return State{remaining: c.Remaining, resourcesLen: len(c.Resources), objectsLen: len(c.Objects)}
}

// Restore rewinds the context to a previously captured State, running the
// destructor of any objects that are being popped.
func (c *ParsingContext) Restore(s State) {
	c.Remaining = s.remaining
	for len(c.Objects) > s.objectsLen {
		last := c.Objects[len(c.Objects)-1]
		if last.Destroy != nil {
			last.Destroy()
		}
		c.Objects = c.Objects[:len(c.Objects)-1]
	}
	c.Resources = c.Resources[:s.resourcesLen]
}

// AddObject attaches value under tag, to be retrieved later by an inner
// extractor or terminal handler via Object or ObjectAt.
func (c *ParsingContext) AddObject(tag string, value any, destroy func()) {
	c.Objects = append(c.Objects, ObjectEntry{Tag: tag, Value: value, Destroy: destroy})
}

// ObjectAt returns the object at index (negative counts from the end),
// mirroring the original's getObject(index = -1).
func (c *ParsingContext) ObjectAt(index int) (any, bool) {
	if index < 0 {
		index = len(c.Objects) + index
	}
	if index < 0 || index >= len(c.Objects) {
		return nil, false
	}
	return c.Objects[index].Value, true
}

// Object returns the most recently attached object with the given tag.
func (c *ParsingContext) Object(tag string) (any, bool) {
	for i := len(c.Objects) - 1; i >= 0; i-- {
		if c.Objects[i].Tag == tag {
			return c.Objects[i].Value, true
		}
	}
	return nil, false
}
