package main

import (
	"fmt"

	"github.com/jabolina/pcj/pkg/pcj/runtime"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// EntryFunc is a user program's per-thread body. It receives the
// bootstrapped Runtime and the global thread id it is running as;
// PGAS operations on rt are addressed by that id.
type EntryFunc func(rt *runtime.Runtime, self types.GlobalThreadID) error

// entryPoints is the compile-time substitute for reflectively
// resolving an entry class from a string: launching a user program is
// an external collaborator, and Go has no dynamic code loading, so a
// user program registers its entry function here at package-init time
// and ties it to --entry by name instead of by class path.
var entryPoints = map[string]EntryFunc{}

// RegisterEntryPoint names fn so it can be selected by --entry=name.
// Call from an init() in the package that implements the user
// program; panics on a duplicate name since that is always a build
// mistake, never a runtime condition.
func RegisterEntryPoint(name string, fn EntryFunc) {
	if _, exists := entryPoints[name]; exists {
		panic(fmt.Sprintf("pcjnode: entry point %q already registered", name))
	}
	entryPoints[name] = fn
}

func init() {
	RegisterEntryPoint("noop", func(rt *runtime.Runtime, self types.GlobalThreadID) error {
		return nil
	})
}
