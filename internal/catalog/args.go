package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/vyrodovalexey/opgw/internal/classify"
)

func invalidArg(format string, a ...any) error {
	return classify.NewError("invalid-argument", fmt.Sprintf(format, a...))
}

// stringArg returns args[name] as a string. A missing optional argument
// yields "".
func stringArg(args map[string]any, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return "", invalidArg("argument %q is required", name)
		}
		return "", nil
	}

	s, ok := v.(string)
	if !ok {
		return "", invalidArg("argument %q must be a string", name)
	}
	if required && s == "" {
		return "", invalidArg("argument %q must not be empty", name)
	}
	return s, nil
}

// intArg returns args[name] as an int. JSON numbers arrive as float64 and
// must be whole.
func intArg(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, invalidArg("argument %q must be an integer", name)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, invalidArg("argument %q must be an integer", name)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, invalidArg("argument %q must be an integer", name)
		}
		return i, nil
	default:
		return 0, invalidArg("argument %q must be an integer", name)
	}
}
