package xmlrpc

import (
	"encoding/base64"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateTimeLayout = "20060102T15:04:05"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EncodeValue renders v as a <value> element.
func EncodeValue(v any) (string, error) {
	var b strings.Builder
	if err := writeValue(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeValue(b *strings.Builder, v any) error {
	b.WriteString("<value>")
	if err := writeInner(b, v); err != nil {
		return err
	}
	b.WriteString("</value>")
	return nil
}

func writeInner(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("<nil/>")
	case bool:
		if x {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case int:
		writeInt(b, int64(x))
	case int8:
		writeInt(b, int64(x))
	case int16:
		writeInt(b, int64(x))
	case int32:
		writeInt(b, int64(x))
	case int64:
		writeInt(b, x)
	case float32:
		return writeDouble(b, float64(x), 32)
	case float64:
		return writeDouble(b, x, 64)
	case string:
		b.WriteString("<string>")
		escaper.WriteString(b, x)
		b.WriteString("</string>")
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(x))
		b.WriteString("</base64>")
	case time.Time:
		b.WriteString("<dateTime.iso8601>")
		b.WriteString(x.UTC().Format(dateTimeLayout))
		b.WriteString("</dateTime.iso8601>")
	case []any:
		b.WriteString("<array><data>")
		for _, item := range x {
			if err := writeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<struct>")
		for _, k := range keys {
			if err := writeMember(b, k, x[k]); err != nil {
				return err
			}
		}
		b.WriteString("</struct>")
	default:
		return writeReflect(b, reflect.ValueOf(v))
	}
	return nil
}

func writeMember(b *strings.Builder, name string, v any) error {
	b.WriteString("<member><name>")
	escaper.WriteString(b, name)
	b.WriteString("</name>")
	if err := writeValue(b, v); err != nil {
		return err
	}
	b.WriteString("</member>")
	return nil
}

func writeInt(b *strings.Builder, n int64) {
	b.WriteString("<int>")
	b.WriteString(strconv.FormatInt(n, 10))
	b.WriteString("</int>")
}

func writeDouble(b *strings.Builder, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &UnsupportedValueError{Value: strconv.FormatFloat(f, 'g', -1, 64)}
	}
	b.WriteString("<double>")
	b.WriteString(strconv.FormatFloat(f, 'f', -1, bits))
	b.WriteString("</double>")
	return nil
}

// writeReflect covers named and non-interface kinds such as []int,
// map[string]string or a string-based enum.
func writeReflect(b *strings.Builder, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("<nil/>")
			return nil
		}
		return writeInner(b, rv.Elem().Interface())
	case reflect.Bool:
		return writeInner(b, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeInt(b, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString("<int>")
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		b.WriteString("</int>")
	case reflect.Float32:
		return writeDouble(b, rv.Float(), 32)
	case reflect.Float64:
		return writeDouble(b, rv.Float(), 64)
	case reflect.String:
		return writeInner(b, rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return writeInner(b, rv.Bytes())
		}
		b.WriteString("<array><data>")
		for i := 0; i < rv.Len(); i++ {
			if err := writeValue(b, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return &UnsupportedTypeError{Type: rv.Type()}
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		b.WriteString("<struct>")
		for _, k := range keys {
			if err := writeMember(b, k.String(), rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		b.WriteString("</struct>")
	default:
		return &UnsupportedTypeError{Type: rv.Type()}
	}
	return nil
}
