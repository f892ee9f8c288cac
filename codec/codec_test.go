package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dwallet-consensus/codec"
	"github.com/luxfi/dwallet-consensus/utils/wrappers"
)

type sample struct {
	A uint64
	B string
	C []byte
}

func (s *sample) MarshalCanonical(p *wrappers.Packer) {
	p.PackLong(s.A)
	p.PackStr(s.B)
	p.PackByteSlice(s.C)
}

func (s *sample) UnmarshalCanonical(u *wrappers.Unpacker) error {
	s.A = u.UnpackLong()
	s.B = u.UnpackStr()
	s.C = u.UnpackByteSlice()
	return nil
}

func TestRoundTrip(t *testing.T) {
	in := &sample{A: 42, B: "hello", C: []byte{1, 2, 3}}
	data := codec.Marshal(in)

	out := &sample{}
	require.NoError(t, codec.Unmarshal(data, out))
	require.Equal(t, in, out)
}

func TestUnsupportedVersion(t *testing.T) {
	data := codec.Marshal(&sample{A: 1})
	data[0] = 0xFF
	out := &sample{}
	err := codec.Unmarshal(data, out)
	require.ErrorIs(t, err, codec.ErrUnsupportedVersion)
}

func TestTruncatedBuffer(t *testing.T) {
	data := codec.Marshal(&sample{A: 1, B: "x", C: []byte{9}})
	out := &sample{}
	require.NoError(t, codec.Unmarshal(data, out))

	truncated := data[:len(data)-1]
	out2 := &sample{}
	require.Error(t, codec.Unmarshal(truncated, out2))
}
