package scripting

import (
	"bytes"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	figureWidth  = 6 * vg.Inch
	figureHeight = 4 * vg.Inch
)

type seriesKind int

const (
	seriesLine seriesKind = iota
	seriesScatter
	seriesBar
)

type series struct {
	kind   seriesKind
	label  string
	xs, ys []float64
}

// Figure accumulates chart series until it is rendered. A figure returned
// as the last expression of a run is rendered to PNG and released.
type Figure struct {
	title, xlabel, ylabel string
	categories            []string
	series                []series
	frozen                bool
}

var (
	_ starlark.Value    = (*Figure)(nil)
	_ starlark.HasAttrs = (*Figure)(nil)
)

func (f *Figure) String() string {
	return fmt.Sprintf("<figure %q with %d series>", f.title, len(f.series))
}

func (f *Figure) Type() string          { return "figure" }
func (f *Figure) Freeze()               { f.frozen = true }
func (f *Figure) Truth() starlark.Bool  { return true }
func (f *Figure) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: figure") }

var figureMethods = map[string]*starlark.Builtin{
	"line":    starlark.NewBuiltin("line", figureLine),
	"scatter": starlark.NewBuiltin("scatter", figureScatter),
	"bar":     starlark.NewBuiltin("bar", figureBar),
	"title":   starlark.NewBuiltin("title", figureSetter(func(f *Figure, s string) { f.title = s })),
	"xlabel":  starlark.NewBuiltin("xlabel", figureSetter(func(f *Figure, s string) { f.xlabel = s })),
	"ylabel":  starlark.NewBuiltin("ylabel", figureSetter(func(f *Figure, s string) { f.ylabel = s })),
}

func (f *Figure) Attr(name string) (starlark.Value, error) {
	if b, ok := figureMethods[name]; ok {
		return b.BindReceiver(f), nil
	}
	return nil, nil
}

func (f *Figure) AttrNames() []string {
	names := make([]string, 0, len(figureMethods))
	for name := range figureMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Release drops the accumulated series.
func (f *Figure) Release() {
	f.series = nil
	f.categories = nil
}

// RenderPNG draws the figure.
func (f *Figure) RenderPNG() ([]byte, error) {
	p := plot.New()
	p.Title.Text = f.title
	p.X.Label.Text = f.xlabel
	p.Y.Label.Text = f.ylabel

	bars := 0
	for _, s := range f.series {
		if s.kind == seriesBar {
			bars++
		}
	}
	barWidth := vg.Points(20)
	if bars > 1 {
		barWidth = vg.Points(float64(40 / bars))
	}

	barIdx := 0
	for i, s := range f.series {
		color := plotutil.Color(i)
		switch s.kind {
		case seriesLine:
			l, err := plotter.NewLine(toXYs(s.xs, s.ys))
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = color
			p.Add(l)
			if s.label != "" {
				p.Legend.Add(s.label, l)
			}
		case seriesScatter:
			sc, err := plotter.NewScatter(toXYs(s.xs, s.ys))
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = color
			p.Add(sc)
			if s.label != "" {
				p.Legend.Add(s.label, sc)
			}
		case seriesBar:
			b, err := plotter.NewBarChart(plotter.Values(s.ys), barWidth)
			if err != nil {
				return nil, err
			}
			b.Color = color
			b.LineStyle.Width = vg.Length(0)
			if bars > 1 {
				b.Offset = vg.Length(float64(barIdx)-float64(bars-1)/2) * barWidth
			}
			barIdx++
			p.Add(b)
			if s.label != "" {
				p.Legend.Add(s.label, b)
			}
		}
	}
	if len(f.categories) > 0 {
		p.NominalX(f.categories...)
	}

	wt, err := p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toXYs(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i := range ys {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}

func (f *Figure) mutable(method string) error {
	if f.frozen {
		return fmt.Errorf("%s: cannot modify frozen figure", method)
	}
	return nil
}

func figureReceiver(b *starlark.Builtin) *Figure {
	return b.Receiver().(*Figure)
}

func figureSetter(set func(*Figure, string)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &s); err != nil {
			return nil, err
		}
		f := figureReceiver(b)
		if err := f.mutable(b.Name()); err != nil {
			return nil, err
		}
		set(f, s)
		return f, nil
	}
}

func figureLine(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return addXY(b, args, kwargs, seriesLine)
}

func figureScatter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return addXY(b, args, kwargs, seriesScatter)
}

// addXY accepts (x, y) or just (y), in which case x is the index.
func addXY(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, kind seriesKind) (starlark.Value, error) {
	var first, second starlark.Iterable
	label := ""
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &first, "y?", &second, "label?", &label); err != nil {
		return nil, err
	}
	f := figureReceiver(b)
	if err := f.mutable(b.Name()); err != nil {
		return nil, err
	}

	xs, err := floats(first)
	if err != nil {
		return nil, fmt.Errorf("%s: x: %w", b.Name(), err)
	}
	var ys []float64
	if second == nil {
		ys = xs
		xs = make([]float64, len(ys))
		for i := range xs {
			xs[i] = float64(i)
		}
	} else {
		ys, err = floats(second)
		if err != nil {
			return nil, fmt.Errorf("%s: y: %w", b.Name(), err)
		}
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%s: x and y differ in length (%d != %d)", b.Name(), len(xs), len(ys))
	}

	f.series = append(f.series, series{kind: kind, label: label, xs: xs, ys: ys})
	return f, nil
}

func figureBar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	var labels starlark.Iterable
	label := ""
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "labels?", &labels, "label?", &label); err != nil {
		return nil, err
	}
	f := figureReceiver(b)
	if err := f.mutable(b.Name()); err != nil {
		return nil, err
	}

	ys, err := floats(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if labels != nil {
		cats, err := strs(labels)
		if err != nil {
			return nil, fmt.Errorf("%s: labels: %w", b.Name(), err)
		}
		f.categories = cats
	}

	f.series = append(f.series, series{kind: seriesBar, label: label, ys: ys})
	return f, nil
}

func floats(seq starlark.Iterable) ([]float64, error) {
	var out []float64
	iter := seq.Iterate()
	defer iter.Done()

	var v starlark.Value
	for iter.Next(&v) {
		x, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected numbers, got %s", v.Type())
		}
		out = append(out, x)
	}
	return out, nil
}

func strs(seq starlark.Iterable) ([]string, error) {
	var out []string
	iter := seq.Iterate()
	defer iter.Done()

	var v starlark.Value
	for iter.Next(&v) {
		if s, ok := starlark.AsString(v); ok {
			out = append(out, s)
		} else {
			out = append(out, v.String())
		}
	}
	return out, nil
}

// plotModule exposes figure constructors to scripts.
var plotModule = &starlarkstruct.Module{
	Name: "plot",
	Members: starlark.StringDict{
		"figure":  starlark.NewBuiltin("plot.figure", plotFigure),
		"line":    starlark.NewBuiltin("plot.line", plotShortcut(figureLine)),
		"scatter": starlark.NewBuiltin("plot.scatter", plotShortcut(figureScatter)),
		"bar":     starlark.NewBuiltin("plot.bar", plotShortcut(figureBar)),
	},
}

func plotFigure(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	f := &Figure{}
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"title?", &f.title, "xlabel?", &f.xlabel, "ylabel?", &f.ylabel); err != nil {
		return nil, err
	}
	return f, nil
}

type builtinFunc func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// plotShortcut creates a fresh figure and applies a single series method.
// A title keyword is accepted alongside the method's own arguments.
func plotShortcut(method builtinFunc) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		f := &Figure{}
		rest := kwargs[:0:0]
		for _, kv := range kwargs {
			if k, _ := starlark.AsString(kv[0]); k == "title" {
				title, ok := starlark.AsString(kv[1])
				if !ok {
					return nil, fmt.Errorf("%s: title must be a string", b.Name())
				}
				f.title = title
				continue
			}
			rest = append(rest, kv)
		}
		bound := starlark.NewBuiltin(b.Name(), method).BindReceiver(f)
		return method(thread, bound, args, rest)
	}
}
