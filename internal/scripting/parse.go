package scripting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

// parseJSON decodes text with the json module so object key order is kept.
func parseJSON(thread *starlark.Thread, text string) (starlark.Value, error) {
	decode := starjson.Module.Members["decode"]
	return starlark.Call(thread, decode, starlark.Tuple{starlark.String(text)}, nil)
}

// parseJSONLines decodes one value per non-blank line.
func parseJSONLines(thread *starlark.Thread, text string) (starlark.Value, error) {
	var items []starlark.Value
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := parseJSON(thread, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		items = append(items, v)
	}
	return starlark.NewList(items), nil
}

// parseCSV reads delimited text into a frame. The first record is the
// header; numeric cells become int or float and empty cells become None.
func parseCSV(text, delimiter string) (*Frame, error) {
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size == 0 || size != len(delimiter) {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return &Frame{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows [][]starlark.Value
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]starlark.Value, len(header))
		for i := range row {
			if i < len(rec) {
				row[i] = inferCell(rec[i])
			} else {
				row[i] = starlark.None
			}
		}
		rows = append(rows, row)
	}

	return &Frame{columns: uniqueNames(header), rows: rows}, nil
}

func inferCell(s string) starlark.Value {
	t := strings.TrimSpace(s)
	if t == "" {
		return starlark.None
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return starlark.MakeInt64(i)
	}
	if strings.ContainsAny(t, "0123456789") {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return starlark.Float(f)
		}
	}
	return starlark.String(s)
}

func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			n = fmt.Sprintf("column%d", i)
		}
		name := n
		for k := 1; taken[name]; k++ {
			name = fmt.Sprintf("%s_%d", n, k)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

func writeCSV(f *Frame, delimiter string) (string, error) {
	comma, size := utf8.DecodeRuneInString(delimiter)
	if size == 0 || size != len(delimiter) {
		return "", fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(f.columns); err != nil {
		return "", err
	}
	for _, row := range f.rows {
		rec := make([]string, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case starlark.NoneType:
			case starlark.String:
				rec[i] = string(x)
			default:
				rec[i] = v.String()
			}
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// parseYAML decodes a YAML document keeping mapping order.
func parseYAML(text string) (starlark.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	return yamlToStarlark(&doc)
}

func yamlToStarlark(n *yaml.Node) (starlark.Value, error) {
	switch n.Kind {
	case 0:
		return starlark.None, nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return starlark.None, nil
		}
		return yamlToStarlark(n.Content[0])

	case yaml.AliasNode:
		return yamlToStarlark(n.Alias)

	case yaml.SequenceNode:
		items := make([]starlark.Value, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlToStarlark(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return starlark.NewList(items), nil

	case yaml.MappingNode:
		d := starlark.NewDict(len(n.Content) / 2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := yamlToStarlark(n.Content[i])
			if err != nil {
				return nil, err
			}
			if _, err := k.Hash(); err != nil {
				k = starlark.String(n.Content[i].Value)
			}
			v, err := yamlToStarlark(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil

	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		sv, err := GoToStarlark(v)
		if err != nil {
			// Timestamps and other tagged scalars keep their source text.
			return starlark.String(n.Value), nil
		}
		return sv, nil
	}
}

// parseSpreadsheet reads the first sheet of an xlsx workbook into a frame.
func parseSpreadsheet(content []byte) (*Frame, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Frame{}, nil
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return &Frame{}, nil
	}

	width := 0
	for _, r := range grid {
		width = max(width, len(r))
	}
	header := make([]string, width)
	copy(header, grid[0])

	rows := make([][]starlark.Value, 0, len(grid)-1)
	for _, src := range grid[1:] {
		row := make([]starlark.Value, width)
		for i := range row {
			if i < len(src) {
				row[i] = inferCell(src[i])
			} else {
				row[i] = starlark.None
			}
		}
		rows = append(rows, row)
	}
	return &Frame{columns: uniqueNames(header), rows: rows}, nil
}

func parseJSONBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
		return nil, err
	}
	v, err := parseJSON(thread, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return v, nil
}

func parseCSVBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	delimiter := ","
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text, "delimiter?", &delimiter); err != nil {
		return nil, err
	}
	f, err := parseCSV(text, delimiter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return f, nil
}

func parseYAMLBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
		return nil, err
	}
	v, err := parseYAML(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return v, nil
}
