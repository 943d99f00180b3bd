package bitio

import (
	"bytes"

	"github.com/icza/bitio"
)

// ReadGolombUnsigned reads one Exp-Golomb coded unsigned value, the same
// bit-reading routine the teacher corpus uses for H.264 SPS field
// decoding, reused here for slice_type extraction.
func ReadGolombUnsigned(r *bitio.Reader) (uint32, error) {
	leadingZeroBits := uint32(0)

	for {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeroBits++
	}

	codeNum := uint32(0)
	for n := leadingZeroBits; n > 0; n-- {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		codeNum |= uint32(b) << (n - 1)
	}

	return (1 << leadingZeroBits) - 1 + codeNum, nil
}

// NewBitReader wraps p in an icza/bitio.Reader for Exp-Golomb/fixed-width
// field decoding.
func NewBitReader(p []byte) *bitio.Reader {
	return bitio.NewReader(bytes.NewReader(p))
}
