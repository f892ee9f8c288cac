// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Errs is a collection of errors
type Errs struct {
	mu   sync.RWMutex
	errs []error
}

// Add adds an error to the collection
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Errored returns true if any errors have been added
func (e *Errs) Errored() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs) > 0
}

// Err returns the errors as a single error
func (e *Errs) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return errors.New(e.String())
	}
}

// String returns a string representation of all errors
func (e *Errs) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	
	if len(e.errs) == 0 {
		return ""
	}
	
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error", len(e.errs)))
	if len(e.errs) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(" occurred:")
	
	for _, err := range e.errs {
		sb.WriteString("\n\t* ")
		sb.WriteString(err.Error())
	}
	
	return sb.String()
}

// Len returns the number of errors
func (e *Errs) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs)
}

// Packer packs data into bytes
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a new Packer
func NewPacker(size int) *Packer {
	return &Packer{
		Bytes: make([]byte, 0, size),
	}
}

// PackByte packs a byte
func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

// PackBytes packs bytes
func (p *Packer) PackBytes(bytes []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, bytes...)
}

// PackInt packs an int as 4 bytes
func (p *Packer) PackInt(i uint32) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
}

// PackLong packs a long as 8 bytes
func (p *Packer) PackLong(l uint64) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes,
		byte(l>>56), byte(l>>48), byte(l>>40), byte(l>>32),
		byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
}

// PackShort packs a short as 2 bytes
func (p *Packer) PackShort(s uint16) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(s>>8), byte(s))
}

// PackBool packs a bool as 1 byte
func (p *Packer) PackBool(b bool) {
	if b {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

// PackByteSlice packs a length-prefixed byte slice: a uint32 length
// followed by the raw bytes.
func (p *Packer) PackByteSlice(b []byte) {
	if p.Err != nil {
		return
	}
	p.PackInt(uint32(len(b)))
	p.PackBytes(b)
}

// PackStr packs a length-prefixed UTF-8 string.
func (p *Packer) PackStr(s string) {
	p.PackByteSlice([]byte(s))
}

// ErrUnpackOverflow is returned when an Unpacker tries to read past the
// end of its buffer.
var ErrUnpackOverflow = errors.New("unpacker: attempt to unpack past end of buffer")

// Unpacker reads data packed by Packer back out, tracking a cursor
// offset and a sticky error exactly like Packer does for writes.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker returns an Unpacker reading from b.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) take(n int) []byte {
	if u.Err != nil {
		return nil
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrUnpackOverflow
		return nil
	}
	out := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return out
}

// UnpackByte unpacks a single byte.
func (u *Unpacker) UnpackByte() byte {
	b := u.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// UnpackBool unpacks a single byte as a bool.
func (u *Unpacker) UnpackBool() bool {
	return u.UnpackByte() != 0
}

// UnpackShort unpacks a big-endian uint16.
func (u *Unpacker) UnpackShort() uint16 {
	b := u.take(2)
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// UnpackInt unpacks a big-endian uint32.
func (u *Unpacker) UnpackInt() uint32 {
	b := u.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// UnpackLong unpacks a big-endian uint64.
func (u *Unpacker) UnpackLong() uint64 {
	b := u.take(8)
	if b == nil {
		return 0
	}
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// UnpackByteSlice unpacks a length-prefixed byte slice, copying it out
// of the underlying buffer so callers may retain it past the Unpacker's
// lifetime.
func (u *Unpacker) UnpackByteSlice() []byte {
	n := u.UnpackInt()
	b := u.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// UnpackStr unpacks a length-prefixed UTF-8 string.
func (u *Unpacker) UnpackStr() string {
	return string(u.UnpackByteSlice())
}

// UnpackFixedBytes unpacks exactly n raw bytes with no length prefix,
// copying them out of the underlying buffer. Used for fixed-size
// fields such as digests where the length is implied by the type.
func (u *Unpacker) UnpackFixedBytes(n int) []byte {
	b := u.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Errored returns the sticky unpack error, if any, so callers can
// write "return u.Errored()" as the last line of UnmarshalCanonical.
func (u *Unpacker) Errored() error {
	return u.Err
}