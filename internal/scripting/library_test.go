package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/querypad/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestLoadLibraries(t *testing.T) {
	tests := []struct {
		name           string
		setupDir       func(t *testing.T) string
		wantNamespaces []string
		wantErr        string
	}{
		{
			name:     "disabled",
			setupDir: func(_ *testing.T) string { return "" },
		},
		{
			name:     "non-existent directory",
			setupDir: func(_ *testing.T) string { return "/nonexistent/path/to/scripts" },
		},
		{
			name: "not a directory",
			setupDir: func(t *testing.T) string {
				return testutil.WriteFile(t, t.TempDir(), "scripts", "not a dir")
			},
			wantErr: "not a directory",
		},
		{
			name: "sorted namespaces",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				testutil.WriteFile(t, dir, "text.star", "def shout(s):\n    return s.upper()\n")
				testutil.WriteFile(t, dir, "agg.star", "def double(x):\n    return x * 2\n")
				testutil.WriteFile(t, dir, "ignored.txt", "nothing")
				return dir
			},
			wantNamespaces: []string{"agg", "text"},
		},
		{
			name: "invalid namespace",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				testutil.WriteFile(t, dir, "1bad.star", "x = 1\n")
				return dir
			},
			wantErr: "must start with letter",
		},
		{
			name: "conflicts with builtin",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				testutil.WriteFile(t, dir, "data.star", "x = 1\n")
				return dir
			},
			wantErr: "conflicts with a builtin",
		},
		{
			name: "execution error",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				testutil.WriteFile(t, dir, "broken.star", "x = undefined_name\n")
				return dir
			},
			wantErr: "scripts/broken.star",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			libs, err := LoadLibraries(tt.setupDir(t), starlark.StringDict{"frame": frameModule}, testutil.NewTestLogger(t))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, lib := range libs {
				got = append(got, lib.Namespace)
			}
			assert.Equal(t, tt.wantNamespaces, got)
		})
	}
}

func TestLoadLibraries_ExportsArePublicAndFrozen(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "util.star", "_private = 1\nitems = [1, 2]\nrows = frame.from_records([{'a': 1}])\n")

	libs, err := LoadLibraries(dir, starlark.StringDict{"frame": frameModule}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, libs, 1)

	lib := libs[0]
	assert.Equal(t, filepath.Join(dir, "util.star"), lib.Path)
	assert.NotContains(t, lib.Exports, "_private")
	require.Contains(t, lib.Exports, "items")

	list := lib.Exports["items"].(*starlark.List)
	assert.Error(t, list.Append(starlark.MakeInt(3)), "library values must be frozen")
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, validateNamespace("snake_case1"))
	assert.NoError(t, validateNamespace("_x"))
	assert.Error(t, validateNamespace(""))
	assert.Error(t, validateNamespace("9x"))
	assert.Error(t, validateNamespace("has-dash"))
}

func TestBootstrap_Modules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.star"), []byte("def one():\n    return 1\n"), 0o600))

	rt, err := Bootstrap(t.Context(), Options{ScriptsDir: dir})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"json", "math", "time", "struct", "frame", "plot", "helpers"}, rt.Modules())
}
