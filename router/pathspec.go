// File: router/pathspec.go
package router

import "regexp"

type pathKind int

const (
	pathLiteral pathKind = iota
	pathRegex
)

// PathSpec matches a prefix of ParsingContext.Remaining: either a literal
// string or a regular expression anchored at the start (spec §3 Route,
// §6 "Route path specs").
type PathSpec struct {
	kind    pathKind
	literal string
	rex     *regexp.Regexp
	desc    string
}

// Literal constructs a PathSpec matching an exact prefix, e.g. "/items".
func Literal(path string) PathSpec {
	return PathSpec{kind: pathLiteral, literal: path, desc: path}
}

// Rx constructs a PathSpec matching pattern anchored at the start of the
// remaining path, e.g. Rx("/items/([0-9]+)", "/items/<id>"). pattern is
// used unanchored internally; anchoring is enforced by requiring the match
// to start at index 0 of Remaining, the same semantics as the original's
// boost::regex_search(...) && !results.prefix().matched.
func Rx(pattern, desc string) PathSpec {
	return PathSpec{kind: pathRegex, rex: regexp.MustCompile(pattern), desc: desc}
}

// Desc returns the human-readable description used by help rendering.
func (p PathSpec) Desc() string { return p.desc }

// NumCapturedElements returns how many entries this spec pushes onto
// ParsingContext.Resources on a successful match: 1 for a literal, or
// 1 + the regex's capture-group count (spec §3, §8 invariant).
func (p PathSpec) NumCapturedElements() int {
	if p.kind == pathLiteral {
		return 1
	}
	return 1 + p.rex.NumSubexp()
}

// Match attempts to consume a prefix of ctx.Remaining, pushing captured
// resources and advancing Remaining on success. It never partially applies
// a failed match: on failure ctx is untouched.
func (p PathSpec) Match(ctx *ParsingContext) bool {
	switch p.kind {
	case pathLiteral:
		if len(ctx.Remaining) < len(p.literal) || ctx.Remaining[:len(p.literal)] != p.literal {
			return false
		}
		ctx.Resources = append(ctx.Resources, p.literal)
		ctx.Remaining = ctx.Remaining[len(p.literal):]
		return true
	case pathRegex:
		loc := p.rex.FindStringSubmatchIndex(ctx.Remaining)
		if loc == nil || loc[0] != 0 {
			return false
		}
		for i := 0; 2*i < len(loc); i++ {
			lo, hi := loc[2*i], loc[2*i+1]
			if lo < 0 {
				ctx.Resources = append(ctx.Resources, "")
				continue
			}
			ctx.Resources = append(ctx.Resources, ctx.Remaining[lo:hi])
		}
		ctx.Remaining = ctx.Remaining[loc[1]:]
		return true
	default:
		return false
	}
}
