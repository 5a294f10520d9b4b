package xmlrpc

import (
	"html"
	"strconv"
	"strings"
)

const xmlHeader = `<?xml version="1.0"?>` + "\n"

// EncodeCall builds a methodCall envelope with the given positional params.
func EncodeCall(method string, params ...any) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<methodCall><methodName>")
	escaper.WriteString(&b, method)
	b.WriteString("</methodName><params>")
	for _, p := range params {
		b.WriteString("<param>")
		if err := writeValue(&b, p); err != nil {
			return nil, err
		}
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return []byte(b.String()), nil
}

func EncodeResponse(v any) ([]byte, error) {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<methodResponse><params><param>")
	if err := writeValue(&b, v); err != nil {
		return nil, err
	}
	b.WriteString("</param></params></methodResponse>")
	return []byte(b.String()), nil
}

func EncodeFault(code int, msg string) []byte {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<methodResponse><fault>")
	// A struct of an int and a string always encodes.
	_ = writeValue(&b, map[string]any{"faultCode": code, "faultString": msg})
	b.WriteString("</fault></methodResponse>")
	return []byte(b.String())
}

// DecodeResponse returns the single value wrapped by a methodResponse. A fault
// container always yields a *Fault error.
func DecodeResponse(body []byte) (any, error) {
	s := string(body)

	fault, ok, err := findElement(s, "fault", 0)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, parseFault(fault)
	}

	params, ok, err := findElement(s, "params", 0)
	if err != nil {
		return nil, err
	}
	if !ok || params.empty {
		return nil, decodeErrorf("response has no params")
	}
	param, ok, err := findElement(params.inner, "param", 0)
	if err != nil {
		return nil, err
	}
	if !ok || param.empty {
		return nil, decodeErrorf("response has no param")
	}
	return DecodeValue(param.inner)
}

func parseFault(el element) *Fault {
	f := &Fault{String: strings.TrimSpace(html.UnescapeString(el.inner))}

	v, err := DecodeValue(el.inner)
	if err != nil {
		return f
	}
	m, ok := v.(map[string]any)
	if !ok {
		return f
	}

	switch code := m["faultCode"].(type) {
	case int:
		f.Code = code
	case string:
		f.Code, _ = strconv.Atoi(code)
	}
	if msg, ok := m["faultString"].(string); ok {
		f.String = msg
	}
	if f.String == "" {
		f.String = "unknown fault"
	}
	return f
}

// DecodeCall parses a methodCall envelope into its method name and params.
func DecodeCall(body []byte) (string, []any, error) {
	s := string(body)

	name, ok, err := findElement(s, "methodName", 0)
	if err != nil {
		return "", nil, err
	}
	if !ok || name.empty {
		return "", nil, decodeErrorf("call has no methodName")
	}
	method := strings.TrimSpace(html.UnescapeString(name.inner))

	params := []any{}
	list, ok, err := findElement(s, "params", name.end)
	if err != nil {
		return "", nil, err
	}
	if !ok || list.empty {
		return method, params, nil
	}
	for i := 0; ; {
		p, ok, err := findElement(list.inner, "param", i)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return method, params, nil
		}
		v, err := DecodeValue(p.inner)
		if err != nil {
			return "", nil, err
		}
		params = append(params, v)
		i = p.end
	}
}
