// Package codec provides the canonical, length-prefixed binary encoding
// used for every persisted and wire type in this module: a one-byte
// version tag followed by the type's fields packed with
// utils/wrappers.Packer. This replaces the teacher's JSON placeholder
// codec with the explicit tagged-version encoding SPEC_FULL.md §4.1/§6
// requires, while keeping the teacher's Packer/Unpacker as the
// underlying primitive.
package codec

import (
	"errors"
	"fmt"

	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

// Version tags a persisted or wire-format record. Every persisted type
// is versioned explicitly so that older on-disk data can be migrated.
type Version uint8

const (
	// V1 is the only version currently emitted.
	V1 Version = 1
)

var ErrUnsupportedVersion = errors.New("codec: unsupported version")

// Encoder is implemented by every persisted/wire type.
type Encoder interface {
	// MarshalCanonical appends this value's V1 encoding to p.
	MarshalCanonical(p *wrappers.Packer)
}

// Decoder is implemented by every persisted/wire type's pointer receiver.
type Decoder interface {
	// UnmarshalCanonical reads this value's V1 encoding from u.
	UnmarshalCanonical(u *wrappers.Unpacker) error
}

// Marshal encodes v as: [version byte][v's canonical body].
func Marshal(v Encoder) []byte {
	p := wrappers.NewPacker(64)
	p.PackByte(byte(V1))
	v.MarshalCanonical(p)
	return p.Bytes
}

// Unmarshal decodes bytes produced by Marshal into v.
func Unmarshal(data []byte, v Decoder) error {
	u := wrappers.NewUnpacker(data)
	ver := Version(u.UnpackByte())
	if u.Err != nil {
		return fmt.Errorf("codec: read version: %w", u.Err)
	}
	if ver != V1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, ver)
	}
	if err := v.UnmarshalCanonical(u); err != nil {
		return err
	}
	if u.Err != nil {
		return fmt.Errorf("codec: %w", u.Err)
	}
	return nil
}

// Size returns the encoded size of v without retaining the buffer.
func Size(v Encoder) int {
	return len(Marshal(v))
}
