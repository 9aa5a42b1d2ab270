package scripting

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Library is a user .star file loaded at bootstrap and exposed to every
// run under its file name.
type Library struct {
	// Namespace is derived from the file name ("stats" for "stats.star").
	Namespace string

	// Path is the path to the .star file.
	Path string

	// Exports holds the public globals (names not starting with _).
	Exports starlark.StringDict
}

// Module wraps the exports as a frozen namespace value.
func (l *Library) Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: l.Namespace, Members: l.Exports}
}

// LoadLibraries executes every .star file in dir with the given predeclared
// modules in scope. A missing directory yields no libraries.
func LoadLibraries(dir string, predeclared starlark.StringDict, logger *slog.Logger) ([]*Library, error) {
	if dir == "" {
		return nil, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access scripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scripts directory: %w", err)
	}
	sort.Strings(files)

	libs := make([]*Library, 0, len(files))
	for _, file := range files {
		lib, err := loadLibrary(file, predeclared)
		if err != nil {
			return nil, err
		}
		_, builtin := predeclared[lib.Namespace]
		if builtin || scopeBuiltins[lib.Namespace] {
			return nil, &LoadError{File: file, Message: fmt.Sprintf("namespace %q conflicts with a builtin", lib.Namespace)}
		}
		logger.Debug("loaded script library",
			slog.String("namespace", lib.Namespace),
			slog.Int("exports", len(lib.Exports)))
		libs = append(libs, lib)
	}
	return libs, nil
}

func loadLibrary(path string, predeclared starlark.StringDict) (*Library, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob inside the scripts directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name:  "load:" + namespace,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	globals, err := starlark.ExecFileOptions(fileOptions(), thread, path, content, predeclared)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict)
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}
	exports.Freeze()

	return &Library{Namespace: namespace, Path: path, Exports: exports}, nil
}

// validateNamespace checks that a file name is usable as an identifier.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case i == 0:
			return fmt.Errorf("namespace must start with letter or underscore: %s", name)
		default:
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

// LoadError reports a library that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("scripts/%s: %s", filepath.Base(e.File), e.Message)
}
