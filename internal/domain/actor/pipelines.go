package actor

import "github.com/spf13/cast"

// pipelineKeys are the object keys a permission row may carry its value under,
// in lookup order.
var pipelineKeys = []string{"doc", "value", "name"}

// NormalizePipelines turns raw permission rows into an allow-list. Rows may
// be bare strings or objects keyed by doc, value or name. Empty values are dropped.
func NormalizePipelines(raw []any) map[string]struct{} {
	out := make(map[string]struct{}, len(raw))
	for _, row := range raw {
		if v := pipelineValue(row); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func pipelineValue(row any) string {
	switch v := row.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]string:
		for _, k := range pipelineKeys {
			if v[k] != "" {
				return v[k]
			}
		}
		return ""
	case map[string]any, map[any]any:
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return ""
		}
		for _, k := range pipelineKeys {
			if s := cast.ToString(m[k]); s != "" {
				return s
			}
		}
		return ""
	default:
		return cast.ToString(v)
	}
}
