package xlog

import "github.com/dchest/uniuri"

// traceIDFunc is a package variable so tests can substitute a deterministic
// generator without touching call sites.
var traceIDFunc = func() string {
	return uniuri.NewLen(12)
}
