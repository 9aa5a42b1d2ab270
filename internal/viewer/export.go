package viewer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotTabular is returned when exporting a view without rows.
var ErrNotTabular = errors.New("result has no rows to export")

// ExportCSV writes every matched row in display order. NULL becomes an
// empty field.
func ExportCSV(w io.Writer, v View) error {
	if v.Display != DisplayTable {
		return ErrNotTabular
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(v.Columns); err != nil {
		return err
	}

	values := make([]string, len(v.Columns))
	for _, row := range v.Matched {
		for i, col := range v.Columns {
			cell := row[col]
			if cell == nil {
				values[i] = ""
				continue
			}
			values[i] = FormatValue(cell)
		}
		if err := cw.Write(values); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes every matched row in display order as an array of
// objects whose keys follow the column order.
func ExportJSON(w io.Writer, v View) error {
	if v.Display != DisplayTable {
		return ErrNotTabular
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range v.Matched {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range v.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return err
			}
			val, err := json.Marshal(sanitize(row[col]))
			if err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

// ExportFilename suggests a download name for an export.
func ExportFilename(sourcePath, ext string) string {
	base := "results"
	if sourcePath != "" {
		name := sourcePath
		if i := strings.LastIndexAny(name, `/\`); i >= 0 {
			name = name[i+1:]
		}
		if i := strings.LastIndexByte(name, '.'); i > 0 {
			name = name[:i]
		}
		if name != "" {
			base = name + "-results"
		}
	}
	return base + "." + ext
}
