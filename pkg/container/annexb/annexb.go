// Package annexb parses the H.264 Annex-B byte-stream format: the
// secondary container variant of SPEC_FULL.md §4.2.2. NAL units are
// separated by 00 00 01 or 00 00 00 01 start codes; this parser groups
// consecutive non-slice NAL units (SPS/PPS/SEI) with the slice NAL that
// follows them into a single self-extractable Frame, one access unit per
// Frame.
//
// NAL unit-type constants follow the teacher's own Annex-B encoder
// (pkg/video/gortsplib/pkg/h264/annexb.go) and the other_examples NAL
// type table (bugVanisher-streamer/media/codec/h264parser).
package annexb

import (
	"fmt"

	"datamosh/pkg/container"
)

// H.264 nal_unit_type values relevant to frame grouping.
const (
	nalTypeNonIDRSlice = 1
	nalTypeIDRSlice    = 5
	nalTypeSPS         = 7
	nalTypePPS         = 8
	nalTypeSEI         = 6
)

// ErrNoStartCode is returned when no NAL boundary is found in the input.
var ErrNoStartCode = fmt.Errorf("%w: no Annex-B start code found", container.ErrFormatUnsupported)

// ErrTruncatedNal is returned when a start code is found with no
// following NAL payload before EOF.
var ErrTruncatedNal = fmt.Errorf("%w: truncated NAL unit", container.ErrContainerCorrupt)

type nalUnit struct {
	scOffset int64 // offset of the start code preceding this NAL unit.
	offset   int64 // offset of the NAL header byte (after the start code).
	length   int64 // length of the NAL unit, excluding the start code.
	typ      byte
}

// Parse scans c's Annex-B bitstream and returns one Frame per access
// unit. SPS/PPS/SEI NAL units preceding a slice are folded into that
// slice's frame so each Frame is self-extractable.
func Parse(c container.BufferSource) (*container.FrameIndex, error) {
	buf := c.Bytes()
	nalus, err := splitNALUs(buf)
	if err != nil {
		return nil, err
	}

	var frames []container.Frame
	var pending []nalUnit // SPS/PPS/SEI seen since the last slice.

	display := 0
	for _, n := range nalus {
		switch n.typ & 0x1F {
		case nalTypeIDRSlice, nalTypeNonIDRSlice:
			// Include each NAL's start code so the frame's byte range is
			// directly extractable as valid Annex-B on its own.
			start := n.scOffset
			if len(pending) > 0 {
				start = pending[0].scOffset
			}
			end := n.offset + n.length
			frames = append(frames, container.Frame{
				ByteOffset:    start,
				ByteLength:    end - start,
				DisplayIndex:  display,
				DecodingIndex: display,
			})
			display++
			pending = nil
		case nalTypeSPS, nalTypePPS, nalTypeSEI:
			pending = append(pending, n)
		default:
			// AUDs and other non-VCL units are dropped from frame
			// boundaries entirely; they carry no picture content.
			pending = nil
		}
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no slice NAL units found", ErrNoStartCode)
	}
	frames[0].IsFirst = true

	return &container.FrameIndex{Kind: container.KindAnnexBRaw, Frames: frames}, nil
}

func init() {
	container.Register(container.KindAnnexBRaw, Parse)
}

// splitNALUs scans buf for start codes and returns the NAL units between
// them, with offsets relative to buf (i.e. to the Container's buffer when
// called with the whole file).
func splitNALUs(buf []byte) ([]nalUnit, error) {
	starts := findStartCodes(buf)
	if len(starts) == 0 {
		return nil, ErrNoStartCode
	}

	var nalus []nalUnit
	for i, sc := range starts {
		naluOffset := sc.offset + int64(sc.length)
		var end int64
		if i+1 < len(starts) {
			end = starts[i+1].offset
		} else {
			end = int64(len(buf))
		}
		if naluOffset >= end {
			return nil, ErrTruncatedNal
		}
		nalus = append(nalus, nalUnit{
			scOffset: sc.offset,
			offset:   naluOffset,
			length:   end - naluOffset,
			typ:      buf[naluOffset],
		})
	}
	return nalus, nil
}

type startCode struct {
	offset int64
	length int // 3 or 4.
}

func findStartCodes(buf []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != 0 || buf[i+1] != 0 {
			continue
		}
		if buf[i+2] == 1 {
			codes = append(codes, startCode{offset: int64(i), length: 3})
			i += 2
			continue
		}
		if i+3 < len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
			codes = append(codes, startCode{offset: int64(i), length: 4})
			i += 3
		}
	}
	return codes
}
