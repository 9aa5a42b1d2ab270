package adapter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/marcboeker/go-duckdb"
)

// NormalizeValue converts driver values into JSON-like scalars and containers.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val <= 1<<63-1 {
			return int64(val)
		}
		return fmt.Sprintf("%d", val)
	case float32:
		return float64(val)
	case time.Time:
		return val
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case duckdb.Decimal:
		return val.Float64()
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", val.Months, val.Days, val.Micros)
	case duckdb.Map:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
