package structured

import (
	"bufio"
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/leapstack-labs/querypad/internal/adapter"
)

type cellKind int

const (
	cellNull cellKind = iota
	cellInt
	cellFloat
	cellBool
	cellString
	cellNested
)

type cell struct {
	kind cellKind
	i    int64
	f    float64
	b    bool
	s    string // string value, or raw text for numbers and nested values
}

// table is an in-memory relation ready to be appended.
type table struct {
	columns []string
	rows    []map[string]cell
}

// parseJSONDocument turns a JSON document into a table. Arrays of objects
// become one row per object with columns taken from the first object in
// order; a single object becomes one row. Anything else reports ok=false.
func parseJSONDocument(data []byte, limit int) (*table, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, false
	}

	value, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, false
	}

	t := &table{}
	switch typ {
	case jsonparser.Object:
		if !t.addObject(value, limit) {
			return nil, false
		}
	case jsonparser.Array:
		_, err := jsonparser.ArrayEach(value, func(elem []byte, et jsonparser.ValueType, _ int, _ error) {
			if et == jsonparser.Object {
				t.addObject(elem, limit)
			}
		})
		if err != nil {
			return nil, false
		}
	default:
		return nil, false
	}

	if len(t.columns) == 0 || len(t.rows) == 0 {
		return nil, false
	}
	return t, true
}

// parseJSONLines reads one JSON object per non-blank line. Any malformed
// line rejects the whole document.
func parseJSONLines(data []byte, limit int) (*table, bool) {
	t := &table{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, false
		}
		value, typ, _, err := jsonparser.Get(line)
		if err != nil || typ != jsonparser.Object {
			return nil, false
		}
		t.addObject(value, limit)
	}
	if sc.Err() != nil || len(t.columns) == 0 || len(t.rows) == 0 {
		return nil, false
	}
	return t, true
}

func (t *table) addObject(obj []byte, limit int) bool {
	if limit > 0 && len(t.rows) >= limit {
		return true
	}

	first := t.columns == nil
	if first {
		t.columns = []string{}
	}

	row := make(map[string]cell)
	err := jsonparser.ObjectEach(obj, func(key []byte, value []byte, vt jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		if _, dup := row[name]; dup {
			return nil
		}
		row[name] = toCell(value, vt)
		if first {
			t.columns = append(t.columns, name)
		}
		return nil
	})
	if err != nil {
		return false
	}

	t.rows = append(t.rows, row)
	return true
}

func toCell(value []byte, vt jsonparser.ValueType) cell {
	switch vt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			s = string(value)
		}
		return cell{kind: cellString, s: s}
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			return cell{kind: cellInt, i: i, s: string(value)}
		}
		f, err := jsonparser.ParseFloat(value)
		if err != nil {
			return cell{kind: cellString, s: string(value)}
		}
		return cell{kind: cellFloat, f: f, s: string(value)}
	case jsonparser.Boolean:
		b, _ := jsonparser.ParseBoolean(value)
		return cell{kind: cellBool, b: b, s: strconv.FormatBool(b)}
	case jsonparser.Object, jsonparser.Array:
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return cell{kind: cellNested, s: string(value)}
		}
		return cell{kind: cellNested, s: buf.String()}
	default:
		return cell{kind: cellNull}
	}
}

// schema infers a column type from every value seen in that column.
func (t *table) schema() []adapter.Column {
	cols := make([]adapter.Column, len(t.columns))
	names := columnNames(t.columns)
	for i, name := range t.columns {
		var ints, floats, bools, others int
		for _, row := range t.rows {
			switch row[name].kind {
			case cellInt:
				ints++
			case cellFloat:
				floats++
			case cellBool:
				bools++
			case cellString, cellNested:
				others++
			}
		}

		typ := "VARCHAR"
		switch {
		case others > 0:
		case bools > 0 && ints+floats == 0:
			typ = "BOOLEAN"
		case floats > 0 && bools == 0:
			typ = "DOUBLE"
		case ints > 0 && bools == 0:
			typ = "BIGINT"
		}
		cols[i] = adapter.Column{Name: names[i], Type: typ}
	}
	return cols
}

// values lays rows out in column order, converted for the column types.
func (t *table) values(cols []adapter.Column) [][]driver.Value {
	out := make([][]driver.Value, len(t.rows))
	for r, row := range t.rows {
		vals := make([]driver.Value, len(t.columns))
		for i, name := range t.columns {
			vals[i] = convertCell(row[name], cols[i].Type)
		}
		out[r] = vals
	}
	return out
}

func convertCell(c cell, typ string) driver.Value {
	if c.kind == cellNull {
		return nil
	}
	switch typ {
	case "BIGINT":
		return c.i
	case "DOUBLE":
		if c.kind == cellInt {
			return float64(c.i)
		}
		return c.f
	case "BOOLEAN":
		return c.b
	default:
		return c.s
	}
}
