package scoring

// Outcome details arrive either as the native types the probes produced or,
// after a round trip through the JSON archive, as the generic shapes
// encoding/json decodes into (float64 numbers, []any lists, map[string]any
// objects). The accessors below read both so the rule table never cares which
// path a detail took.

func detailBool(d map[string]any, key string) bool {
	v, ok := d[key].(bool)
	return ok && v
}

func detailString(d map[string]any, key string) string {
	v, _ := d[key].(string)
	return v
}

func detailInt(d map[string]any, key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func detailStrings(d map[string]any, key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func detailMaps(d map[string]any, key string) []map[string]any {
	switch v := d[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
