package xmlrpc

import (
	"encoding/base64"
	"html"
	"strconv"
	"strings"
	"time"
)

var dateTimeLayouts = []string{
	dateTimeLayout,
	"2006-01-02T15:04:05",
	"20060102T15:04:05Z07:00",
	time.RFC3339,
}

// DecodeValue parses the first <value> element in text.
func DecodeValue(text string) (any, error) {
	el, ok, err := findElement(text, "value", 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decodeErrorf("no <value> element")
	}
	return parseElementValue(el, true)
}

func parseElementValue(el element, top bool) (any, error) {
	if el.empty {
		return "", nil
	}
	return parseValue(el.inner, top)
}

// parseValue decodes the content of a <value> element. Untagged content is a
// string; at the top level bare integer text is accepted as an int.
func parseValue(inner string, top bool) (any, error) {
	trimmed := strings.TrimSpace(inner)
	if !strings.HasPrefix(trimmed, "<") {
		if top {
			if n, err := strconv.Atoi(trimmed); err == nil {
				return n, nil
			}
		}
		return html.UnescapeString(inner), nil
	}

	name, err := leadingTagName(trimmed)
	if err != nil {
		return nil, err
	}
	el, ok, err := findElement(trimmed, name, 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decodeErrorf("malformed <%s> element", name)
	}
	if rest := strings.TrimSpace(trimmed[el.end:]); rest != "" {
		return nil, decodeErrorf("unexpected content after <%s>: %.20q", name, rest)
	}

	if el.empty {
		switch name {
		case "nil":
			return nil, nil
		case "string":
			return "", nil
		case "array":
			return []any{}, nil
		case "struct":
			return map[string]any{}, nil
		}
		return nil, decodeErrorf("empty <%s> element", name)
	}
	return parseTyped(name, el.inner)
}

func parseTyped(name, text string) (any, error) {
	trimmed := strings.TrimSpace(text)

	switch name {
	case "int", "i4", "i8":
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, decodeErrorf("invalid <%s> %q", name, trimmed)
		}
		return n, nil
	case "boolean":
		switch trimmed {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, decodeErrorf("invalid <boolean> %q", trimmed)
	case "double":
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, decodeErrorf("invalid <double> %q", trimmed)
		}
		return f, nil
	case "string":
		return html.UnescapeString(text), nil
	case "base64":
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return nil, decodeErrorf("invalid <base64>: %v", err)
		}
		return raw, nil
	case "dateTime.iso8601":
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, nil
			}
		}
		return nil, decodeErrorf("invalid <dateTime.iso8601> %q", trimmed)
	case "nil":
		return nil, nil
	case "array":
		return parseArray(text)
	case "struct":
		return parseStruct(text)
	}
	return nil, decodeErrorf("unknown value type <%s>", name)
}

func parseArray(text string) ([]any, error) {
	data, ok, err := findElement(text, "data", 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decodeErrorf("<array> without <data>")
	}

	out := []any{}
	if data.empty {
		return out, nil
	}
	for i := 0; ; {
		el, ok, err := findElement(data.inner, "value", i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		v, err := parseElementValue(el, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		i = el.end
	}
}

func parseStruct(text string) (map[string]any, error) {
	out := map[string]any{}
	for i := 0; ; {
		m, ok, err := findElement(text, "member", i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if m.empty {
			return nil, decodeErrorf("empty <member>")
		}

		key, v, err := parseMember(m.inner)
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, decodeErrorf("duplicate struct member %q", key)
		}
		out[key] = v
		i = m.end
	}
}

func parseMember(inner string) (string, any, error) {
	val, ok, err := findElement(inner, "value", 0)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, decodeErrorf("<member> without <value>")
	}

	name, ok, err := findElement(inner, "name", 0)
	if err == nil && ok && name.start > val.start && name.start < val.end {
		// The first <name> belongs to a nested member; ours follows the value.
		name, ok, err = findElement(inner, "name", val.end)
	}
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, decodeErrorf("<member> without <name>")
	}

	v, err := parseElementValue(val, false)
	if err != nil {
		return "", nil, err
	}
	return html.UnescapeString(name.inner), v, nil
}
