package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// DefaultTemplate names files by date, media id and a caption prefix.
const DefaultTemplate = "{date:%Y-%m-%d}.{media_id}.{text:.35}.{extension}"

// MaxTextLength caps the caption before any template precision applies.
const MaxTextLength = 100

// Template is a parsed filename template. Fields are written {name} or
// {name:spec}; {{ and }} are literal braces. Dates take a strftime spec,
// strings a ".N" precision, integers an optional zero-padded width.
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	field   string
	spec    string
}

// ParseTemplate parses tmpl. An empty tmpl yields DefaultTemplate.
func ParseTemplate(tmpl string) (*Template, error) {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	t := &Template{raw: tmpl}

	var lit strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed field at offset %d", i)
			}
			if lit.Len() > 0 {
				t.parts = append(t.parts, templatePart{literal: lit.String()})
				lit.Reset()
			}
			name, spec, _ := strings.Cut(tmpl[i+1:i+end], ":")
			if name == "" {
				return nil, fmt.Errorf("empty field name at offset %d", i)
			}
			t.parts = append(t.parts, templatePart{field: name, spec: spec})
			i += end
		case c == '}':
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, templatePart{literal: lit.String()})
	}
	return t, nil
}

// String returns the template source
func (t *Template) String() string { return t.raw }

// Fields are the values a template can reference. Unknown names render
// as the empty string.
type Fields map[string]any

// Render expands the template with fields.
func (t *Template) Render(fields Fields) (string, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.field == "" {
			sb.WriteString(p.literal)
			continue
		}
		v, ok := fields[p.field]
		if !ok {
			continue
		}
		s, err := renderValue(v, p.spec)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", p.field, err)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func renderValue(v any, spec string) (string, error) {
	switch val := v.(type) {
	case time.Time:
		if spec == "" {
			return val.Format("2006-01-02 15:04:05-07:00"), nil
		}
		return strftime.Format(spec, val), nil
	case string:
		return renderString(val, spec)
	case int:
		return renderInt(int64(val), spec)
	case int64:
		return renderInt(val, spec)
	default:
		if spec != "" {
			return "", fmt.Errorf("unsupported spec %q for %T", spec, v)
		}
		return fmt.Sprint(val), nil
	}
}

func renderString(s, spec string) (string, error) {
	spec = strings.TrimSuffix(spec, "s")
	if spec == "" {
		return s, nil
	}
	if !strings.HasPrefix(spec, ".") {
		return "", fmt.Errorf("unsupported string spec %q", spec)
	}
	n, err := strconv.Atoi(spec[1:])
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid precision %q", spec)
	}
	return truncate(s, n), nil
}

func renderInt(n int64, spec string) (string, error) {
	spec = strings.TrimSuffix(spec, "d")
	if spec == "" {
		return strconv.FormatInt(n, 10), nil
	}
	width, err := strconv.Atoi(spec)
	if err != nil || width < 0 {
		return "", fmt.Errorf("unsupported integer spec %q", spec)
	}
	if strings.HasPrefix(spec, "0") {
		return fmt.Sprintf("%0*d", width, n), nil
	}
	return fmt.Sprintf("%*d", width, n), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	whitespace  = regexp.MustCompile(`[\s\p{Z}]`)
	nonWord     = regexp.MustCompile(`[^\p{L}\p{N}_.-]`)
	underscores = regexp.MustCompile(`_+`)
	dots        = regexp.MustCompile(`\.+`)
	joints      = regexp.MustCompile(`(_\.|\._)`)
)

// Sanitize turns a rendered name into a single lowercase filename token:
// whitespace becomes "_", anything but letters, digits, "_", "." and "-"
// is dropped, and runs of separators collapse.
func Sanitize(name string) string {
	name = whitespace.ReplaceAllString(name, "_")
	name = nonWord.ReplaceAllString(name, "")
	name = underscores.ReplaceAllString(name, "_")
	name = dots.ReplaceAllString(name, ".")
	name = joints.ReplaceAllString(name, ".")
	return strings.ToLower(name)
}
