package avi

import "encoding/binary"

// buildMiniAVI constructs a minimal, well-formed single-stream AVI file
// with the given video frame payloads (in decoding order), each wrapped
// in a "00dc" chunk, for use as a test fixture. It mirrors the shape the
// executor must reproduce: hdrl (with one vids strl), movi, idx1.
func buildMiniAVI(frames [][]byte) []byte {
	var hdrl []byte
	hdrl = append(hdrl, chunk("avih", make([]byte, 56))...)

	strh := make([]byte, 56)
	copy(strh[0:4], "vids")
	strl := chunk("strh", strh)
	strl = append(strl, chunk("strf", make([]byte, 40))...)
	hdrl = append(hdrl, list("strl", strl)...)

	var movi []byte
	for _, f := range frames {
		movi = append(movi, chunk("00dc", f)...)
	}

	var idxEntries []byte
	offset := uint32(0) // relative to first byte after "movi" fourcc.
	for _, f := range frames {
		entry := make([]byte, 16)
		copy(entry[0:4], "00dc")
		binary.LittleEndian.PutUint32(entry[4:8], 0x10)
		binary.LittleEndian.PutUint32(entry[8:12], offset)
		binary.LittleEndian.PutUint32(entry[12:16], uint32(len(f)))
		idxEntries = append(idxEntries, entry...)

		chunkLen := 8 + uint32(len(f))
		if len(f)&1 == 1 {
			chunkLen++
		}
		offset += chunkLen
	}

	var body []byte
	body = append(body, list("hdrl", hdrl)...)
	body = append(body, list("movi", movi)...)
	body = append(body, chunk("idx1", idxEntries)...)

	var out []byte
	out = append(out, []byte("RIFF")...)
	out = append(out, le32(uint32(4+len(body)))...)
	out = append(out, []byte("AVI ")...)
	out = append(out, body...)
	return out
}

func chunk(fourcc string, payload []byte) []byte {
	out := append([]byte(fourcc), le32(uint32(len(payload)))...)
	out = append(out, payload...)
	if len(payload)&1 == 1 {
		out = append(out, 0)
	}
	return out
}

func list(listType string, content []byte) []byte {
	payload := append([]byte(listType), content...)
	return chunk("LIST", payload)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
