// Package template renders action parameters against the trigger event that
// started an execution, so workflow authors can interpolate event fields into
// URLs, subjects, and message bodies.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/storeflow/storeflow/pkg/triggers"
)

// RenderForEvent renders input with the event's payload fields exposed as
// .event and the envelope metadata as .trigger.
func RenderForEvent(input string, event triggers.Event) (any, error) {
	fields, err := event.Fields()
	if err != nil {
		return nil, fmt.Errorf("failed to flatten event payload: %w", err)
	}

	data := map[string]any{
		"event": fields,
		"trigger": map[string]any{
			"id":        event.ID,
			"kind":      string(event.Kind),
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		},
		"env": getEnvVars(),
	}

	return Render(input, data)
}

// RenderParams returns a copy of params with every string value rendered
// against the event. Nested maps and slices are walked recursively.
func RenderParams(params map[string]any, event triggers.Event) (map[string]any, error) {
	rendered, err := renderValue(params, event)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rendered parameters are not an object: %T", rendered)
	}

	return result, nil
}

func renderValue(value any, event triggers.Event) (any, error) {
	switch typed := value.(type) {
	case string:
		return RenderForEvent(typed, event)
	case map[string]any:
		result := make(map[string]any, len(typed))

		for key, nested := range typed {
			rendered, err := renderValue(nested, event)
			if err != nil {
				return nil, err
			}

			result[key] = rendered
		}

		return result, nil
	case []any:
		result := make([]any, len(typed))

		for i, nested := range typed {
			rendered, err := renderValue(nested, event)
			if err != nil {
				return nil, err
			}

			result[i] = rendered
		}

		return result, nil
	default:
		return value, nil
	}
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("params").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Rendered JSON objects and arrays come back as structured data.
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderString renders input and stringifies the result, for parameters that
// must stay textual regardless of what the template produced.
func RenderString(input string, event triggers.Event) (string, error) {
	rendered, err := RenderForEvent(input, event)
	if err != nil {
		return "", err
	}

	switch typed := rendered.(type) {
	case string:
		return typed, nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return "", err
		}

		return string(encoded), nil
	}
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
