// Package binary provides a bounds-checked little-endian cursor over byte
// buffers, used by the recurrence blob codec.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a fixed-width read runs past the end of the buffer.
var ErrShortBuffer = errors.New("unexpected end of buffer")

// FieldError reports which field could not be read and where.
type FieldError struct {
	Field  string
	Offset int
	Need   int
	Have   int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("read %s at offset %d: need %d bytes, have %d", e.Field, e.Offset, e.Need, e.Have)
}

func (e *FieldError) Unwrap() error {
	return ErrShortBuffer
}

// Reader reads fixed-width little-endian values from a byte slice.
// Every read names the field it is reading so failures can be traced back
// to a position in the wire layout.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// AtEnd reports whether the whole buffer has been consumed.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.buf)
}

func (r *Reader) take(field string, n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, &FieldError{Field: field, Offset: r.pos, Need: n, Have: r.Remaining()}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16(field string) (uint16, error) {
	b, err := r.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint32s reads count consecutive uint32 values. The count is checked
// against the remaining length before anything is allocated.
func (r *Reader) Uint32s(field string, count uint32) ([]uint32, error) {
	if uint64(count)*4 > uint64(r.Remaining()) {
		return nil, &FieldError{Field: field, Offset: r.pos, Need: int(count) * 4, Have: r.Remaining()}
	}
	out := make([]uint32, count)
	for i := range out {
		v, err := r.Uint32(field)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Bytes reads n raw bytes. The returned slice is a copy.
func (r *Reader) Bytes(field string, n int) ([]byte, error) {
	b, err := r.take(field, n)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// SizedBlock reads a uint32 size followed by that many bytes.
func (r *Reader) SizedBlock(field string) ([]byte, error) {
	size, err := r.Uint32(field + " size")
	if err != nil {
		return nil, err
	}
	if uint64(size) > uint64(r.Remaining()) {
		return nil, &FieldError{Field: field, Offset: r.pos, Need: int(size), Have: r.Remaining()}
	}
	return r.Bytes(field, int(size))
}

// ANSIString reads the double length prefix used by exception records
// (u16 length+1, u16 length) followed by length Windows-1252 bytes.
func (r *Reader) ANSIString(field string) (string, error) {
	if _, err := r.Uint16(field + " length"); err != nil {
		return "", err
	}
	n, err := r.Uint16(field + " length2")
	if err != nil {
		return "", err
	}
	b, err := r.take(field, int(n))
	if err != nil {
		return "", err
	}
	return DecodeANSI(b)
}

// WideString reads a u16 character count followed by UTF-16LE code units.
func (r *Reader) WideString(field string) (string, error) {
	n, err := r.Uint16(field + " length")
	if err != nil {
		return "", err
	}
	b, err := r.take(field, int(n)*2)
	if err != nil {
		return "", err
	}
	return DecodeWide(b)
}
