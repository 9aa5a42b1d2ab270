// Package scripting runs Starlark snippets against the active file.
//
// The interpreter runtime is bootstrapped once and holds only frozen,
// shareable modules. Each run gets a fresh scope with its own globals,
// output buffer and thread, discarded when the run ends.
package scripting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Options configures the runtime.
type Options struct {
	// ScriptsDir holds user .star libraries. Empty disables libraries.
	ScriptsDir string
	// MaxSteps caps interpreter steps per run. Zero means unlimited.
	MaxSteps uint64
	Logger   *slog.Logger
}

// Runtime is the bootstrapped interpreter shared by all runs.
type Runtime struct {
	modules   starlark.StringDict
	libraries map[string]*Library
	maxSteps  uint64
}

// Bootstrap prepares the builtin modules and loads user libraries.
func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	modules := starlark.StringDict{
		"json":   starjson.Module,
		"math":   starmath.Module,
		"time":   startime.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"frame":  frameModule,
		"plot":   plotModule,
	}

	libs, err := LoadLibraries(opts.ScriptsDir, modules, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		modules:   make(starlark.StringDict, len(modules)+len(libs)),
		libraries: make(map[string]*Library, len(libs)),
		maxSteps:  opts.MaxSteps,
	}
	for name, v := range modules {
		rt.modules[name] = v
	}
	for _, lib := range libs {
		rt.modules[lib.Namespace] = lib.Module()
		rt.libraries[lib.Namespace] = lib
	}
	rt.modules.Freeze()

	return rt, nil
}

// Modules returns the names of the shared modules, libraries included.
func (rt *Runtime) Modules() []string {
	return rt.modules.Keys()
}

// load resolves load("name.star", ...) against the user libraries.
func (rt *Runtime) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	lib, ok := rt.libraries[strings.TrimSuffix(module, ".star")]
	if !ok {
		return nil, fmt.Errorf("cannot load %s: no such library", module)
	}
	return lib.Exports, nil
}

func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:               true,
		While:             true,
		TopLevelControl:   true,
		GlobalReassign:    true,
		LoadBindsGlobally: true,
		Recursion:         true,
	}
}
