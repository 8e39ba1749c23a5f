// Package conv 提供类型转换工具，用于把 JSON 等弱类型数据转成特征向量。
package conv

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32、json.Number 与数字字符串；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// FlattenFloat64 把任意嵌套的数值数组（如 [[[...]]] 形式的模型输出）按行优先展平。
// 任一叶子无法转为 float64 时返回错误，不做部分结果。
func FlattenFloat64(v any) ([]float64, error) {
	out := make([]float64, 0, 64)
	if err := flattenInto(&out, v, 0); err != nil {
		return nil, err
	}
	return out, nil
}

const maxFlattenDepth = 8

func flattenInto(out *[]float64, v any, depth int) error {
	if depth > maxFlattenDepth {
		return fmt.Errorf("conv: nesting deeper than %d", maxFlattenDepth)
	}
	switch val := v.(type) {
	case []any:
		for _, e := range val {
			if err := flattenInto(out, e, depth+1); err != nil {
				return err
			}
		}
		return nil
	case []float64:
		*out = append(*out, val...)
		return nil
	default:
		f, ok := ToFloat64(val)
		if !ok {
			return fmt.Errorf("conv: non-numeric element %T", v)
		}
		*out = append(*out, f)
		return nil
	}
}

// ParseVectorJSON 解析 JSON 数组形式的向量；空串与 "null" 返回 nil。
func ParseVectorJSON(data []byte) ([]float64, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("conv: parse vector: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.([]any); !ok {
		return nil, fmt.Errorf("conv: vector must be a JSON array, got %T", raw)
	}
	return FlattenFloat64(raw)
}
