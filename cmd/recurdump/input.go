package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// readBlob turns a command argument into blob bytes. "-" reads the argument
// text from stdin. Whitespace inside hex and base64 text is ignored.
func readBlob(arg, encoding string, stdin io.Reader) ([]byte, error) {
	if encoding == "raw" {
		if arg == "-" {
			return io.ReadAll(stdin)
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("reading blob file: %w", err)
		}
		return data, nil
	}

	text := arg
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	switch encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 blob: %w", err)
		}
		return data, nil
	default:
		data, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(text), "0x"))
		if err != nil {
			return nil, fmt.Errorf("decoding hex blob: %w", err)
		}
		return data, nil
	}
}
