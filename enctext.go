package edict

import (
	"strings"
	"unicode/utf8"
)

// String renders d as compact JSON-like text, with map keys sorted. Values of
// unknown types render as their type token.
func (d *Dictionary) String() string {
	var buf strings.Builder
	d.WriteText(&buf)
	return buf.String()
}

func (d *Dictionary) WriteText(buf *strings.Builder) {
	if d.value != nil {
		d.value.text(buf)
		return
	}
	buf.WriteByte('{')
	for i, key := range d.Keys() {
		if i > 0 {
			buf.WriteString(", ")
		}
		quote(buf, key)
		buf.WriteString(": ")
		d.children[key].WriteText(buf)
	}
	buf.WriteByte('}')
}

const hexDigits = "0123456789abcdef"

// quote writes s as a JSON string literal. Invalid UTF-8 becomes U+FFFD.
func quote(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf.WriteByte('\\')
				buf.WriteByte(c)
			case c == '\n':
				buf.WriteString(`\n`)
			case c == '\r':
				buf.WriteString(`\r`)
			case c == '\t':
				buf.WriteString(`\t`)
			case c < 0x20 || c == 0x7f:
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			default:
				buf.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString(`\ufffd`)
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
