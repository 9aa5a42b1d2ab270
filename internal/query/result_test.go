package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"structured", ModeStructured, false},
		{"SQL", ModeStructured, false},
		{"duckdb", ModeStructured, false},
		{"scripting", ModeScripting, false},
		{"python", ModeScripting, false},
		{" Starlark ", ModeScripting, false},
		{"ruby", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewExecutionContext_CopiesContent(t *testing.T) {
	content := []byte("a,b\n1,2\n")
	ec := NewExecutionContext("/tmp/Data.CSV", content)

	content[0] = 'z'

	assert.Equal(t, "a,b\n1,2\n", ec.Content())
	assert.Equal(t, "csv", ec.FileExtension)
	assert.Equal(t, "/tmp/Data.CSV", ec.FilePath)
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, "json", ExtensionOf("x/y/z.JSON"))
	assert.Equal(t, "", ExtensionOf("Makefile"))
	assert.Equal(t, "gz", ExtensionOf("data.csv.gz"))
}

func TestFailure_HasNoPayload(t *testing.T) {
	res := Failure(ModeScripting, "boom", 1500*time.Microsecond)

	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.Nil(t, res.Rows)
	assert.Nil(t, res.ReturnValue)
	assert.Empty(t, res.Stdout)
	assert.InDelta(t, 1.5, res.ExecutionTimeMs, 0.001)
}

func TestFailure_EmptyMessage(t *testing.T) {
	res := Failure(ModeStructured, "", 0)
	assert.Equal(t, "unknown error", res.Error)
}

func TestStructured(t *testing.T) {
	res := Structured(nil, nil, time.Millisecond)

	assert.True(t, res.Success)
	assert.True(t, res.IsTabular())
	assert.Equal(t, 0, res.RowCount())
	assert.Empty(t, res.Error)
	assert.Equal(t, time.Millisecond, res.Elapsed())
}

func TestScripted(t *testing.T) {
	t.Run("tabular", func(t *testing.T) {
		rows := []map[string]any{{"a": int64(1)}}
		res := Scripted("hi\n", Return{Kind: ReturnTabular, Columns: []string{"a"}, Rows: rows}, 0)

		assert.True(t, res.IsTabular())
		assert.Equal(t, rows, res.ReturnValue)
		assert.Equal(t, "hi\n", res.Stdout)
	})

	t.Run("image", func(t *testing.T) {
		res := Scripted("", Return{Kind: ReturnImage, Image: "aGk="}, 0)

		assert.Equal(t, "aGk=", res.RenderedImage)
		assert.Nil(t, res.ReturnValue)
		assert.False(t, res.IsTabular())
	})

	t.Run("none", func(t *testing.T) {
		res := Scripted("1\n", Return{}, 0)

		assert.Equal(t, ReturnNone, res.ReturnKind)
		assert.Nil(t, res.ReturnValue)
	})
}
