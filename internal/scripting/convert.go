package scripting

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/leapstack-labs/querypad/internal/query"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ErrCyclic is returned when a value contains itself.
var ErrCyclic = errors.New("value contains itself")

// ToGo converts a Starlark value into a JSON-like Go value.
// Returns: nil, string, int64, float64, bool, []any or map[string]any.
// Values without a data representation, such as functions, and values
// that contain themselves are an error.
func ToGo(v starlark.Value) (any, error) {
	return newConverter().toGo(v)
}

// converter tracks the containers on the current path so a list that
// holds itself ends the walk instead of the stack.
type converter struct {
	path map[starlark.Value]struct{}
}

func newConverter() *converter {
	return &converter{path: make(map[starlark.Value]struct{})}
}

// enter marks a container as being converted; the returned func unmarks it.
func (c *converter) enter(v starlark.Value) (func(), error) {
	if _, ok := c.path[v]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCyclic, v.Type())
	}
	c.path[v] = struct{}{}
	return func() { delete(c.path, v) }, nil
}

func (c *converter) toGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Bytes:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		leave, err := c.enter(val)
		if err != nil {
			return nil, err
		}
		defer leave()
		return c.iterable(val, val.Len(), "list")

	case starlark.Tuple:
		// Tuples are immutable, so any cycle through one passes a
		// mutable container that is tracked.
		return c.iterable(val, val.Len(), "tuple")

	case *starlark.Set:
		leave, err := c.enter(val)
		if err != nil {
			return nil, err
		}
		defer leave()
		return c.iterable(val, val.Len(), "set")

	case *starlark.Dict:
		leave, err := c.enter(val)
		if err != nil {
			return nil, err
		}
		defer leave()
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key := keyString(item[0])
			gv, err := c.toGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[key] = gv
		}
		return result, nil

	case *starlarkstruct.Struct:
		leave, err := c.enter(val)
		if err != nil {
			return nil, err
		}
		defer leave()
		fields := make(starlark.StringDict)
		val.ToStringDict(fields)
		result := make(map[string]any, len(fields))
		for k, fv := range fields {
			gv, err := c.toGo(fv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			result[k] = gv
		}
		return result, nil

	case *Frame:
		leave, err := c.enter(val)
		if err != nil {
			return nil, err
		}
		defer leave()
		records := val.records(c)
		out := make([]any, len(records))
		for i, r := range records {
			out[i] = r
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported type: %s", v.Type())
	}
}

func (c *converter) iterable(seq starlark.Iterable, n int, kind string) ([]any, error) {
	result := make([]any, 0, n)
	iter := seq.Iterate()
	defer iter.Done()

	var item starlark.Value
	for i := 0; iter.Next(&item); i++ {
		gv, err := c.toGo(item)
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", kind, i, err)
		}
		result = append(result, gv)
	}
	return result, nil
}

func keyString(k starlark.Value) string {
	if s, ok := starlark.AsString(k); ok {
		return s
	}
	return k.String()
}

// Convert maps the value of a run's trailing expression onto the closed set
// of return kinds. Figures are rendered and released here.
func Convert(v starlark.Value) (query.Return, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return query.Return{Kind: query.ReturnNone}, nil

	case *Figure:
		defer val.Release()
		png, err := val.RenderPNG()
		if err != nil {
			return query.Return{}, fmt.Errorf("failed to render figure: %w", err)
		}
		return query.Return{Kind: query.ReturnImage, Image: base64.StdEncoding.EncodeToString(png)}, nil

	case *Frame:
		return query.Return{
			Kind:    query.ReturnTabular,
			Columns: val.Columns(),
			Rows:    val.Records(),
		}, nil
	}

	gv, err := ToGo(v)
	if err != nil {
		return query.Return{Kind: query.ReturnRaw, Value: v.String()}, nil
	}
	return query.Return{Kind: query.ReturnScalar, Value: gv}, nil
}
