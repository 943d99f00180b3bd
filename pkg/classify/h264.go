package classify

import (
	"datamosh/pkg/bitio"
	"datamosh/pkg/container"
)

// H.264 nal_unit_type values (ITU-T H.264 Table 7-1), matching the
// teacher's own Annex-B encoder (pkg/video/gortsplib/pkg/h264).
const (
	nalTypeNonIDRSlice = 1
	nalTypeIDRSlice    = 5
)

// classifyH264AnnexB inspects the first slice NAL of the frame's payload.
// A frame built by the Annex-B parser may be prefixed with SPS/PPS/SEI
// NALs (folded in for self-extractability); this walks past them to find
// the slice.
func classifyH264AnnexB(payload []byte) container.CodecType {
	nalType, nalBody, ok := firstSliceNAL(payload)
	if !ok {
		return container.Unknown
	}

	if nalType == nalTypeIDRSlice {
		return container.IFrameIDR
	}
	if nalType != nalTypeNonIDRSlice {
		return container.Unknown
	}

	sliceType, ok := readSliceType(nalBody)
	if !ok {
		return container.Unknown
	}

	switch sliceType % 5 {
	case 2, 4:
		return container.IFrameNonIDR
	case 0, 3:
		return container.PFrame
	case 1:
		return container.BFrame
	default:
		return container.Unknown
	}
}

// firstSliceNAL walks start-code-delimited NAL units in payload and
// returns the type and body (past the 1-byte NAL header) of the first
// slice NAL (type 1 or 5) found.
func firstSliceNAL(payload []byte) (typ byte, body []byte, ok bool) {
	i := 0
	n := len(payload)
	for i+2 < n {
		if payload[i] != 0 || payload[i+1] != 0 {
			i++
			continue
		}
		var headerLen int
		if i+2 < n && payload[i+2] == 1 {
			headerLen = 3
		} else if i+3 < n && payload[i+2] == 0 && payload[i+3] == 1 {
			headerLen = 4
		} else {
			i++
			continue
		}

		nalStart := i + headerLen
		if nalStart >= n {
			break
		}
		t := payload[nalStart] & 0x1F
		if t == nalTypeIDRSlice || t == nalTypeNonIDRSlice {
			return t, payload[nalStart+1:], true
		}
		i = nalStart
	}
	return 0, nil, false
}

// readSliceType decodes the first two Exp-Golomb codes of a slice
// header (first_mb_in_slice, slice_type) and returns slice_type. Spec
// note (SPEC_FULL.md §4.3 / spec.md §4.3): slice_type values 0-4 and
// 5-9 are equivalent modulo 5; callers reduce mod 5.
func readSliceType(sliceBody []byte) (uint32, bool) {
	r := bitio.NewBitReader(sliceBody)

	if _, err := bitio.ReadGolombUnsigned(r); err != nil { // first_mb_in_slice
		return 0, false
	}
	sliceType, err := bitio.ReadGolombUnsigned(r)
	if err != nil {
		return 0, false
	}
	return sliceType, true
}
