package edict

import (
	"fmt"
	"strings"
)

// KeyError is returned when a key is required to be present but isn't.
// Path lists the keys of the enclosing maps, outermost first.
type KeyError struct {
	Path []string
	Key  string
	Msg  string
}

func keyErrf(key string, format string, args ...any) error {
	return &KeyError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

func (e *KeyError) Error() string {
	var buf strings.Builder
	writePath(&buf, e.Path)
	fmt.Fprintf(&buf, "key %q not found", e.Key)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

func writePath(buf *strings.Builder, path []string) {
	if len(path) > 0 {
		buf.WriteString("at \"")
		buf.WriteString(strings.Join(path, "."))
		buf.WriteString("\": ")
	}
}

// TypeError is returned when a stored or deserialized type disagrees with the
// type requested by the caller.
//
// Path lists the keys leading to the failing node, outermost first. It is
// filled in as the error propagates out of recursive merges.
type TypeError struct {
	Path     []string
	Expected string
	Actual   string
	Msg      string
	Err      error
}

func typeErrf(expected, actual string, format string, args ...any) error {
	return &TypeError{Expected: expected, Actual: actual, Msg: fmt.Sprintf(format, args...)}
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

func (e *TypeError) Error() string {
	var buf strings.Builder
	writePath(&buf, e.Path)
	if e.Msg != "" {
		buf.WriteString(e.Msg)
	} else {
		buf.WriteString("type mismatch")
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&buf, " (expected %s, got %s)", e.Expected, e.Actual)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// atKey prefixes the path of a *TypeError or *KeyError with key. Other errors
// are wrapped into a *TypeError so that the location is never lost.
func atKey(err error, key string) error {
	switch e := err.(type) {
	case nil:
		return nil
	case *TypeError:
		e.Path = append([]string{key}, e.Path...)
		return e
	case *KeyError:
		e.Path = append([]string{key}, e.Path...)
		return e
	default:
		return &TypeError{Path: []string{key}, Err: err}
	}
}

// DataError describes malformed wire data.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at offset %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at offset %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at offset %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at offset %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}
