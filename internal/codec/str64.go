package codec

import (
	"bytes"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Str64 is a zero-padded identifier slot.
type Str64 [64]byte

// NewStr64 copies s into a slot. Strings longer than the slot are rejected
// rather than truncated.
func NewStr64(s string) (Str64, error) {
	var k Str64
	if len(s) > len(k) {
		return k, errors.Wrap(exception.ErrSlotOverflow, "str64").With("len", len(s))
	}
	copy(k[:], s)
	return k, nil
}

func (bs Str64) String() string {
	return string(bs.Slice())
}

// Slice returns the bytes up to the first zero.
func (bs Str64) Slice() []byte {
	if i := bytes.IndexByte(bs[:], 0); i >= 0 {
		return bs[:i]
	}
	return bs[:]
}

func (bs Str64) Len() int {
	return len(bs.Slice())
}

func putStr64(dst []byte, field, s string) error {
	slot, err := NewStr64(s)
	if err != nil {
		return errors.Wrap(err, field)
	}
	copy(dst[:len(slot)], slot[:])
	return nil
}

func readStr64(src []byte) string {
	var slot Str64
	copy(slot[:], src)
	return slot.String()
}
