package sign

import (
	"fmt"
	"strconv"
	"strings"
)

// format renders a brace template the way the rule publishers write it:
// "{}" and "{N}" select positional arguments, an optional ":spec" of x, X, d
// or s formats them, and doubled braces are literal.
func format(tmpl string, args ...any) (string, error) {
	var sb strings.Builder
	next := 0

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' in format %q", tmpl)
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed '{' in format %q", tmpl)
			}
			field := tmpl[i+1 : i+end]
			i += end

			name, spec, _ := strings.Cut(field, ":")
			idx := next
			if name == "" {
				next++
			} else {
				n, err := strconv.Atoi(name)
				if err != nil {
					return "", fmt.Errorf("unsupported field %q", field)
				}
				idx = n
			}
			if idx < 0 || idx >= len(args) {
				return "", fmt.Errorf("field %q has no argument", field)
			}

			s, err := formatValue(args[idx], spec)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func formatValue(v any, spec string) (string, error) {
	switch val := v.(type) {
	case int:
		switch spec {
		case "", "d":
			return strconv.Itoa(val), nil
		case "x":
			return strconv.FormatInt(int64(val), 16), nil
		case "X":
			return strings.ToUpper(strconv.FormatInt(int64(val), 16)), nil
		}
	case string:
		if spec == "" || spec == "s" {
			return val, nil
		}
	}
	return "", fmt.Errorf("unsupported spec %q for %T", spec, v)
}
