package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Writer appends little-endian values to a growing buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) Uint32s(vs []uint32) {
	for _, v := range vs {
		w.Uint32(v)
	}
}

func (w *Writer) Raw(b []byte) {
	w.buf.Write(b)
}

// SizedBlock writes len(b) as a uint32 followed by b. An empty block is
// written as a zero size.
func (w *Writer) SizedBlock(b []byte) {
	w.Uint32(uint32(len(b)))
	w.buf.Write(b)
}

// ANSIString writes s as Windows-1252 with the (length+1, length) prefix pair.
func (w *Writer) ANSIString(field, s string) error {
	b, err := EncodeANSI(s)
	if err != nil {
		return err
	}
	if len(b) >= math.MaxUint16 {
		return fmt.Errorf("%s: %d characters exceeds the ANSI field limit", field, len(b))
	}
	w.Uint16(uint16(len(b) + 1))
	w.Uint16(uint16(len(b)))
	w.buf.Write(b)
	return nil
}

// WideString writes a character count followed by UTF-16LE code units.
func (w *Writer) WideString(field, s string) error {
	b, err := EncodeWide(s)
	if err != nil {
		return err
	}
	chars := len(b) / 2
	if chars > math.MaxUint16 {
		return fmt.Errorf("%s: %d characters exceeds the wide field limit", field, chars)
	}
	w.Uint16(uint16(chars))
	w.buf.Write(b)
	return nil
}
