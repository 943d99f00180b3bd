package classify

import "datamosh/pkg/container"

// vopStartCode is the MPEG-4 ASP (Xvid/DivX) VOP start code.
var vopStartCode = [4]byte{0x00, 0x00, 0x01, 0xB6}

// classifyMPEG4ASP locates the VOP start code within the payload and
// reads vop_coding_type from the following two bits (spec.md §4.3):
// 00=I, 01=P, 10=B, 11=S. All MPEG-4 ASP I-frames are treated as
// keyframes (I_IDR); S (sprite) VOPs are not moshable and report
// container.Unknown.
//
// SPEC_FULL.md §9 notes that packed B-frame VOL extensions are not fully
// specified by the source material; frames carrying them fall through to
// container.Unknown here rather than risk misclassifying a B-frame as a
// reference frame.
func classifyMPEG4ASP(payload []byte) container.CodecType {
	idx, ok := findVOPStartCode(payload)
	if !ok {
		return container.Unknown
	}
	// A packed bitstream chunk carries more than one VOP.
	if _, packed := findVOPStartCode(payload[idx+4:]); packed {
		return container.Unknown
	}

	// The two bits immediately after the 4-byte start code carry
	// vop_coding_type, MSB first.
	bitPos := idx*8 + 32
	codingType := readBits(payload, bitPos, 2)

	switch codingType {
	case 0b00:
		return container.IFrameIDR
	case 0b01:
		return container.PFrame
	case 0b10:
		return container.BFrame
	default: // 0b11: sprite VOP.
		return container.Unknown
	}
}

func findVOPStartCode(payload []byte) (int, bool) {
	for i := 0; i+4 <= len(payload); i++ {
		if payload[i] == vopStartCode[0] &&
			payload[i+1] == vopStartCode[1] &&
			payload[i+2] == vopStartCode[2] &&
			payload[i+3] == vopStartCode[3] {
			return i, true
		}
	}
	return 0, false
}

// readBits reads n bits (n <= 8) starting at bitPos (0 = MSB of byte 0)
// from a byte slice, MSB-first.
func readBits(data []byte, bitPos, n int) byte {
	var out byte
	for i := 0; i < n; i++ {
		bytePos := (bitPos + i) / 8
		bitInByte := 7 - (bitPos+i)%8
		if bytePos >= len(data) {
			break
		}
		bit := (data[bytePos] >> bitInByte) & 1
		out = (out << 1) | bit
	}
	return out
}
