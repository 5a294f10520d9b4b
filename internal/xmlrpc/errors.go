package xmlrpc

import (
	"fmt"
	"reflect"
)

// Fault is a structured error returned by the remote side. It is never
// surfaced as an ordinary value.
type Fault struct {
	Code   int
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.String)
}

// DecodeError reports a malformed or unparseable payload.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "xmlrpc: decode: " + e.Msg
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return "xmlrpc: unsupported type " + e.Type.String()
}

type UnsupportedValueError struct {
	Value string
}

func (e *UnsupportedValueError) Error() string {
	return "xmlrpc: unsupported value " + e.Value
}
