package scripting

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Frame is an immutable column-ordered table exposed to scripts.
// Every method returns a new frame.
type Frame struct {
	columns []string
	rows    [][]starlark.Value
	frozen  bool

	rendering atomic.Bool
}

var (
	_ starlark.Value    = (*Frame)(nil)
	_ starlark.HasAttrs = (*Frame)(nil)
	_ starlark.Mapping  = (*Frame)(nil)
	_ starlark.Sequence = (*Frame)(nil)
)

// NewFrame builds a frame. Short rows are padded with None.
func NewFrame(columns []string, rows [][]starlark.Value) *Frame {
	for i, r := range rows {
		if len(r) < len(columns) {
			padded := make([]starlark.Value, len(columns))
			copy(padded, r)
			for j := len(r); j < len(columns); j++ {
				padded[j] = starlark.None
			}
			rows[i] = padded
		}
	}
	return &Frame{columns: columns, rows: rows}
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Records converts every row into a column-keyed map of Go values.
// Cells without a data representation fall back to their string form.
func (f *Frame) Records() []map[string]any {
	c := newConverter()
	leave, _ := c.enter(f)
	defer leave()
	return f.records(c)
}

func (f *Frame) records(c *converter) []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for i, row := range f.rows {
		rec := make(map[string]any, len(f.columns))
		for j, col := range f.columns {
			v, err := c.toGo(row[j])
			if err != nil {
				v = row[j].String()
			}
			rec[col] = v
		}
		out[i] = rec
	}
	return out
}

func (f *Frame) String() string {
	// A frame reached again through one of its own cells prints as its
	// header only.
	if !f.rendering.CompareAndSwap(false, true) {
		return fmt.Sprintf("frame(%d rows x %d columns)", len(f.rows), len(f.columns))
	}
	defer f.rendering.Store(false)

	var sb strings.Builder
	fmt.Fprintf(&sb, "frame(%d rows x %d columns)", len(f.rows), len(f.columns))
	if len(f.columns) == 0 {
		return sb.String()
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Join(f.columns, "\t"))
	limit := min(len(f.rows), 10)
	for _, row := range f.rows[:limit] {
		cells := make([]string, len(row))
		for i, v := range row {
			if s, ok := starlark.AsString(v); ok {
				cells[i] = s
			} else {
				cells[i] = v.String()
			}
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, "\t"))
	}
	if len(f.rows) > limit {
		fmt.Fprintf(&sb, "\n... %d more rows", len(f.rows)-limit)
	}
	return sb.String()
}

func (f *Frame) Type() string { return "frame" }

func (f *Frame) Freeze() {
	if f.frozen {
		return
	}
	f.frozen = true
	for _, row := range f.rows {
		for _, v := range row {
			v.Freeze()
		}
	}
}

func (f *Frame) Truth() starlark.Bool { return len(f.rows) > 0 }

func (f *Frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: frame") }

func (f *Frame) Len() int { return len(f.rows) }

func (f *Frame) Iterate() starlark.Iterator { return &frameIterator{f: f} }

// Get supports frame["col"] for a column list and frame[i] for a row dict.
func (f *Frame) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		idx := f.columnIndex(string(key))
		if idx < 0 {
			return nil, false, nil
		}
		return f.column(idx), true, nil
	case starlark.Int:
		i, ok := key.Int64()
		if !ok {
			return nil, false, fmt.Errorf("frame index out of range")
		}
		n := int64(len(f.rows))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, false, fmt.Errorf("frame index %s out of range [0:%d]", key, n)
		}
		return f.rowDict(int(i)), true, nil
	default:
		return nil, false, fmt.Errorf("frame index must be str or int, not %s", k.Type())
	}
}

var frameMethods = map[string]*starlark.Builtin{
	"head":         starlark.NewBuiltin("head", frameHead),
	"tail":         starlark.NewBuiltin("tail", frameTail),
	"records":      starlark.NewBuiltin("records", frameRecords),
	"column":       starlark.NewBuiltin("column", frameColumn),
	"select":       starlark.NewBuiltin("select", frameSelect),
	"sort_by":      starlark.NewBuiltin("sort_by", frameSortBy),
	"where":        starlark.NewBuiltin("where", frameWhere),
	"describe":     starlark.NewBuiltin("describe", frameDescribe),
	"value_counts": starlark.NewBuiltin("value_counts", frameValueCounts),
	"to_csv":       starlark.NewBuiltin("to_csv", frameToCSV),
}

func (f *Frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		list := make([]starlark.Value, len(f.columns))
		for i, c := range f.columns {
			list[i] = starlark.String(c)
		}
		return starlark.NewList(list), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(len(f.rows)), starlark.MakeInt(len(f.columns))}, nil
	}
	if b, ok := frameMethods[name]; ok {
		return b.BindReceiver(f), nil
	}
	return nil, nil
}

func (f *Frame) AttrNames() []string {
	names := []string{"columns", "shape"}
	for name := range frameMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Frame) columnIndex(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (f *Frame) column(idx int) *starlark.List {
	vals := make([]starlark.Value, len(f.rows))
	for i, row := range f.rows {
		vals[i] = row[idx]
	}
	return starlark.NewList(vals)
}

func (f *Frame) rowDict(i int) *starlark.Dict {
	d := starlark.NewDict(len(f.columns))
	for j, col := range f.columns {
		_ = d.SetKey(starlark.String(col), f.rows[i][j])
	}
	return d
}

func (f *Frame) slice(from, to int) *Frame {
	rows := make([][]starlark.Value, to-from)
	copy(rows, f.rows[from:to])
	return &Frame{columns: f.Columns(), rows: rows}
}

type frameIterator struct {
	f *Frame
	i int
}

func (it *frameIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.f.rows) {
		return false
	}
	*p = it.f.rowDict(it.i)
	it.i++
	return true
}

func (it *frameIterator) Done() {}

func receiver(b *starlark.Builtin) *Frame {
	return b.Receiver().(*Frame)
}

func frameHead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	f := receiver(b)
	return f.slice(0, clamp(n, 0, len(f.rows))), nil
}

func frameTail(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	f := receiver(b)
	return f.slice(len(f.rows)-clamp(n, 0, len(f.rows)), len(f.rows)), nil
}

func frameRecords(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	f := receiver(b)
	list := make([]starlark.Value, len(f.rows))
	for i := range f.rows {
		list[i] = f.rowDict(i)
	}
	return starlark.NewList(list), nil
}

func frameColumn(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	f := receiver(b)
	idx := f.columnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s: no column %q", b.Name(), name)
	}
	return f.column(idx), nil
}

func frameSelect(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	f := receiver(b)

	idxs := make([]int, len(args))
	names := make([]string, len(args))
	for i, a := range args {
		name, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: column names must be strings, got %s", b.Name(), a.Type())
		}
		idx := f.columnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%s: no column %q", b.Name(), name)
		}
		idxs[i] = idx
		names[i] = name
	}

	rows := make([][]starlark.Value, len(f.rows))
	for r, row := range f.rows {
		out := make([]starlark.Value, len(idxs))
		for i, idx := range idxs {
			out[i] = row[idx]
		}
		rows[r] = out
	}
	return &Frame{columns: names, rows: rows}, nil
}

func frameSortBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	reverse := false
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &name, "reverse?", &reverse); err != nil {
		return nil, err
	}
	f := receiver(b)
	idx := f.columnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s: no column %q", b.Name(), name)
	}

	out := f.slice(0, len(f.rows))
	var sortErr error
	sort.SliceStable(out.rows, func(i, j int) bool {
		a, c := out.rows[i][idx], out.rows[j][idx]
		if reverse {
			a, c = c, a
		}
		less, err := lessValue(a, c)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), sortErr)
	}
	return out, nil
}

// lessValue orders None before everything else.
func lessValue(a, b starlark.Value) (bool, error) {
	if a == starlark.None {
		return b != starlark.None, nil
	}
	if b == starlark.None {
		return false, nil
	}
	return starlark.Compare(syntax.LT, a, b)
}

func frameWhere(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pred starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "predicate", &pred); err != nil {
		return nil, err
	}
	f := receiver(b)

	var rows [][]starlark.Value
	for i, row := range f.rows {
		keep, err := starlark.Call(thread, pred, starlark.Tuple{f.rowDict(i)}, nil)
		if err != nil {
			return nil, err
		}
		if keep.Truth() {
			rows = append(rows, row)
		}
	}
	return &Frame{columns: f.Columns(), rows: rows}, nil
}

func frameDescribe(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	f := receiver(b)

	var rows [][]starlark.Value
	for idx, col := range f.columns {
		var count int
		var sum float64
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range f.rows {
			x, ok := starlark.AsFloat(row[idx])
			if !ok {
				continue
			}
			count++
			sum += x
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		if count == 0 {
			continue
		}
		rows = append(rows, []starlark.Value{
			starlark.String(col),
			starlark.MakeInt(count),
			starlark.Float(sum / float64(count)),
			starlark.Float(lo),
			starlark.Float(hi),
		})
	}
	return &Frame{columns: []string{"column", "count", "mean", "min", "max"}, rows: rows}, nil
}

func frameValueCounts(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &name); err != nil {
		return nil, err
	}
	f := receiver(b)
	idx := f.columnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s: no column %q", b.Name(), name)
	}

	counts := starlark.NewDict(0)
	for _, row := range f.rows {
		key := row[idx]
		if _, err := key.Hash(); err != nil {
			key = starlark.String(key.String())
		}
		prev, found, err := counts.Get(key)
		if err != nil {
			return nil, err
		}
		n := 0
		if found {
			n, _ = starlark.AsInt32(prev)
		}
		if err := counts.SetKey(key, starlark.MakeInt(n+1)); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

func frameToCSV(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	delimiter := ","
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "delimiter?", &delimiter); err != nil {
		return nil, err
	}
	s, err := writeCSV(receiver(b), delimiter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(s), nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// frameModule exposes frame constructors to scripts.
var frameModule = &starlarkstruct.Module{
	Name: "frame",
	Members: starlark.StringDict{
		"from_records": starlark.NewBuiltin("frame.from_records", frameFromRecords),
		"from_columns": starlark.NewBuiltin("frame.from_columns", frameFromColumns),
		"read_csv":     starlark.NewBuiltin("frame.read_csv", parseCSVBuiltin),
	},
}

func frameFromRecords(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var records starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "records", &records); err != nil {
		return nil, err
	}
	return FrameFromRecords(records)
}

// FrameFromRecords builds a frame from an iterable of dicts. Columns follow
// first-seen key order across all records.
func FrameFromRecords(records starlark.Iterable) (*Frame, error) {
	var dicts []*starlark.Dict
	iter := records.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		d, ok := item.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("records must be dicts, got %s", item.Type())
		}
		dicts = append(dicts, d)
	}

	var columns []string
	seen := map[string]bool{}
	for _, d := range dicts {
		for _, k := range d.Keys() {
			name := keyString(k)
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}

	rows := make([][]starlark.Value, len(dicts))
	for r, d := range dicts {
		row := make([]starlark.Value, len(columns))
		for i := range row {
			row[i] = starlark.None
		}
		for _, kv := range d.Items() {
			for i, col := range columns {
				if col == keyString(kv[0]) {
					row[i] = kv[1]
					break
				}
			}
		}
		rows[r] = row
	}
	return &Frame{columns: columns, rows: rows}, nil
}

func frameFromColumns(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cols *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "columns", &cols); err != nil {
		return nil, err
	}

	var names []string
	var data [][]starlark.Value
	height := 0
	for _, kv := range cols.Items() {
		seq, ok := kv[1].(starlark.Indexable)
		if !ok {
			return nil, fmt.Errorf("%s: column %s must be a list, got %s", b.Name(), kv[0], kv[1].Type())
		}
		vals := make([]starlark.Value, seq.Len())
		for i := range vals {
			vals[i] = seq.Index(i)
		}
		names = append(names, keyString(kv[0]))
		data = append(data, vals)
		height = max(height, len(vals))
	}

	rows := make([][]starlark.Value, height)
	for r := range rows {
		row := make([]starlark.Value, len(names))
		for c := range names {
			if r < len(data[c]) {
				row[c] = data[c][r]
			} else {
				row[c] = starlark.None
			}
		}
		rows[r] = row
	}
	return &Frame{columns: names, rows: rows}, nil
}
