package binary

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	ansi = charmap.Windows1252
	wide = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// DecodeANSI converts Windows-1252 bytes to a Go string.
func DecodeANSI(b []byte) (string, error) {
	out, err := ansi.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode cp1252: %w", err)
	}
	return string(out), nil
}

// EncodeANSI converts s to Windows-1252. Runes outside the code page are
// replaced with the code page substitute character.
func EncodeANSI(s string) ([]byte, error) {
	out, err := encoding.ReplaceUnsupported(ansi.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode cp1252: %w", err)
	}
	return out, nil
}

// DecodeWide converts UTF-16LE bytes to a Go string.
func DecodeWide(b []byte) (string, error) {
	out, err := wide.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode utf-16le: %w", err)
	}
	return string(out), nil
}

// EncodeWide converts s to UTF-16LE without a byte order mark.
func EncodeWide(s string) ([]byte, error) {
	out, err := wide.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode utf-16le: %w", err)
	}
	return out, nil
}
