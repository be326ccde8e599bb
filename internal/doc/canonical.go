package doc

import (
	"bytes"
	"fmt"
	"slices"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const hexDigits = "0123456789abcdef"

// MarshalCanonical encodes a property map as canonical JSON. Text is
// written as given, so decoding the result yields the same strings.
// A nil map encodes as {}.
func MarshalCanonical(props map[string]string) ([]byte, error) {
	return marshalCanonical(props, false)
}

// marshalCanonical encodes props, optionally NFC normalizing keys and values
// first. Normalized output is only hashed, never stored.
func marshalCanonical(props map[string]string, nfc bool) ([]byte, error) {
	type entry struct{ key, val string }

	entries := make([]entry, 0, len(props))
	seen := make(map[string]struct{}, len(props))
	for k, v := range props {
		if nfc {
			k, v = norm.NFC.String(k), norm.NFC.String(v)
		}
		// Two keys may collapse to the same NFC form.
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("duplicate property %q after NFC normalization", k)
		}
		seen[k] = struct{}{}
		entries = append(entries, entry{key: k, val: v})
	}
	slices.SortFunc(entries, func(a, b entry) int { return compareUTF16(a.key, b.key) })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, e.key); err != nil {
			return nil, fmt.Errorf("key %q: %w", e.key, err)
		}
		buf.WriteByte(':')
		if err := writeString(&buf, e.val); err != nil {
			return nil, fmt.Errorf("value for key %q: %w", e.key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeString writes s as a JSON string. Only the quote, the backslash and
// control characters below U+0020 are escaped.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8")
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0xF])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return nil
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Plain string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
