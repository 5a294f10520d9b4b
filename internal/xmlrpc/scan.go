package xmlrpc

import "strings"

type tagKind int

const (
	tagOpen tagKind = iota
	tagClose
	tagEmpty
)

type element struct {
	start, end int // bounds of the whole element in the scanned text
	inner      string
	empty      bool
}

// nextTag finds the next open, close or self-closing tag for name at or after
// from. end is the index just past the tag's '>'.
func nextTag(s, name string, from int) (start, end int, kind tagKind, ok bool) {
	open := "<" + name
	closing := "</" + name

	for i := from; i < len(s); {
		j := strings.IndexByte(s[i:], '<')
		if j < 0 {
			return 0, 0, 0, false
		}
		j += i
		rest := s[j:]

		var k tagKind
		switch {
		case strings.HasPrefix(rest, closing) && atBoundary(rest, len(closing)):
			k = tagClose
		case strings.HasPrefix(rest, open) && atBoundary(rest, len(open)):
			k = tagOpen
		default:
			i = j + 1
			continue
		}

		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			return 0, 0, 0, false
		}
		if k == tagOpen && rest[gt-1] == '/' {
			k = tagEmpty
		}
		return j, j + gt + 1, k, true
	}
	return 0, 0, 0, false
}

func atBoundary(s string, n int) bool {
	if n >= len(s) {
		return false
	}
	switch s[n] {
	case '>', '/', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// matchClose finds the closing tag that balances an opening <name> ending at
// from. Elements of the same name may nest: every further opening tag raises
// the depth and only the closing tag that returns it to zero matches.
func matchClose(s, name string, from int) (closeStart, closeEnd int, err error) {
	depth := 1
	for i := from; ; {
		start, end, kind, ok := nextTag(s, name, i)
		if !ok {
			return 0, 0, decodeErrorf("unterminated <%s> element", name)
		}
		switch kind {
		case tagOpen:
			depth++
		case tagClose:
			depth--
			if depth == 0 {
				return start, end, nil
			}
		}
		i = end
	}
}

// findElement locates the first name element at or after from.
func findElement(s, name string, from int) (element, bool, error) {
	start, end, kind, ok := nextTag(s, name, from)
	if !ok {
		return element{}, false, nil
	}
	switch kind {
	case tagEmpty:
		return element{start: start, end: end, empty: true}, true, nil
	case tagClose:
		return element{}, false, decodeErrorf("unexpected </%s>", name)
	}

	cs, ce, err := matchClose(s, name, end)
	if err != nil {
		return element{}, false, err
	}
	return element{start: start, end: ce, inner: s[end:cs]}, true, nil
}

// leadingTagName returns the element name of the tag s starts with.
func leadingTagName(s string) (string, error) {
	if len(s) < 2 || s[0] != '<' {
		return "", decodeErrorf("expected a tag")
	}
	n := strings.IndexAny(s[1:], " \t\r\n/>")
	if n <= 0 {
		return "", decodeErrorf("malformed tag %.20q", s)
	}
	return s[1 : n+1], nil
}
