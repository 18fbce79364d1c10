package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/kelreel/sonichash/internal/config"
	"github.com/kelreel/sonichash/internal/model"
)

// PlainTexter is implemented by results that have a natural plain-text form,
// such as a chat reply.
type PlainTexter interface {
	PlainText() string
}

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.OutputMode == "json" {
		var payload any = data
		if !settings.ResultsOnly {
			env.Data = data
			payload = env
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	if !env.Success && env.Error != nil {
		_, err := fmt.Fprintf(w, "error (%s, exit %d): %s\n", env.Error.Type, env.Error.Code, env.Error.Message)
		return err
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	return renderPlain(w, data)
}

func renderPlain(w io.Writer, data any) error {
	if pt, ok := data.(PlainTexter); ok {
		_, err := fmt.Fprintln(w, pt.PlainText())
		return err
	}
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	if k := v.Kind(); k != reflect.Slice && k != reflect.Array {
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
	if v.Len() == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for i := 0; i < v.Len(); i++ {
		line, err := toLine(normalizeValue(v.Index(i).Interface()))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// project keeps only the selected fields. Fields may be dotted paths into
// nested objects, e.g. "action.type".
func project(data any, fields []string) any {
	switch t := normalizeValue(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return t
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		path := strings.Split(f, ".")
		if v, ok := lookup(m, path); ok {
			assign(out, path, v)
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(m map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val := m[k]
		if nested, ok := val.(map[string]any); ok {
			line, _ := toLine(nested)
			val = "{" + line + "}"
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, val))
	}
	return strings.Join(parts, " "), nil
}
