package classify

import (
	"testing"

	"datamosh/pkg/container"
	"github.com/stretchr/testify/require"
)

func nal(typ byte, rbsp ...byte) []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x01, typ}, rbsp...)
}

func TestClassifyH264AnnexBIDR(t *testing.T) {
	payload := nal(5, 0xFF)
	require.Equal(t, container.IFrameIDR, Classify(container.HintH264AnnexB, payload))
}

// A slice header's first two fields are Exp-Golomb coded:
// first_mb_in_slice then slice_type. Exp-Golomb code for value 0 is a
// single '1' bit; for value 1 it's "010"; for value 7 it's "0001000".
// Every case below fixes first_mb_in_slice=0 ("1") and varies slice_type.
func TestClassifyH264AnnexBNonIDRSliceTypes(t *testing.T) {
	cases := []struct {
		name      string
		sliceType byte
		bits      []byte
		want      container.CodecType
	}{
		{"P_sliceType0", 0, []byte{0b11000000}, container.PFrame},         // "1"+"1"
		{"B_sliceType1", 1, []byte{0b10100000}, container.BFrame},         // "1"+"010"
		{"I_sliceType7", 7, []byte{0b10001000}, container.IFrameNonIDR},   // "1"+"0001000"
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			payload := nal(nalTypeNonIDRSlice, c.bits...)
			got := Classify(container.HintH264AnnexB, payload)
			require.Equal(t, c.want, got)
		})
	}
}

func TestClassifyH264AnnexBUnknownOnGarbage(t *testing.T) {
	require.Equal(t, container.Unknown, Classify(container.HintH264AnnexB, []byte{0, 0, 0}))
}

func TestClassifyMPEG4ASPTypes(t *testing.T) {
	iVOP := append([]byte{0x00, 0x00, 0x01, 0xB6}, 0b00000000)
	pVOP := append([]byte{0x00, 0x00, 0x01, 0xB6}, 0b01000000)
	bVOP := append([]byte{0x00, 0x00, 0x01, 0xB6}, 0b10000000)
	sVOP := append([]byte{0x00, 0x00, 0x01, 0xB6}, 0b11000000)

	require.Equal(t, container.IFrameIDR, Classify(container.HintMPEG4ASP, iVOP))
	require.Equal(t, container.PFrame, Classify(container.HintMPEG4ASP, pVOP))
	require.Equal(t, container.BFrame, Classify(container.HintMPEG4ASP, bVOP))
	require.Equal(t, container.Unknown, Classify(container.HintMPEG4ASP, sVOP))
}

func TestClassifyMPEG4ASPNoVOP(t *testing.T) {
	require.Equal(t, container.Unknown, Classify(container.HintMPEG4ASP, []byte{1, 2, 3}))
}

func TestClassifyUnknownHint(t *testing.T) {
	require.Equal(t, container.Unknown, Classify(container.HintUnknown, []byte{1, 2, 3}))
}
