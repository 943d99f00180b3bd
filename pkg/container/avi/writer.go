package avi

import "encoding/binary"

// IndexEntry is one 16-byte idx1 record.
type IndexEntry struct {
	ChunkID        [4]byte
	Flags          uint32
	OffsetFromMovi uint32 // relative to the first byte after the "movi" fourcc.
	Size           uint32
}

// BuildIndexTable rebuilds the idx1 payload (without its 8-byte chunk
// header) from a post-edit frame layout. offsetFromMovi for each frame is
// the frame's new chunk-header offset minus the new movi content start,
// matching the convention documented in Layout.MoviContentOffset.
func BuildIndexTable(entries []IndexEntry) []byte {
	out := make([]byte, len(entries)*IndexEntrySize)
	for i, e := range entries {
		off := i * IndexEntrySize
		copy(out[off:off+4], e.ChunkID[:])
		binary.LittleEndian.PutUint32(out[off+4:off+8], e.Flags)
		binary.LittleEndian.PutUint32(out[off+8:off+12], e.OffsetFromMovi)
		binary.LittleEndian.PutUint32(out[off+12:off+16], e.Size)
	}
	return out
}

// ChunkFourCC returns the chunk fourcc ("NNdc") used for video frames of
// the given stream number.
func ChunkFourCC(streamNumber string) [4]byte {
	var fcc [4]byte
	copy(fcc[:], streamNumber+"dc")
	return fcc
}

// EncodeChunkHeader returns the 8-byte FourCC+size header for a chunk.
func EncodeChunkHeader(fourcc string, size uint32) []byte {
	out := make([]byte, 8)
	copy(out[0:4], fourcc)
	binary.LittleEndian.PutUint32(out[4:8], size)
	return out
}

// EncodeLE32 encodes v as 4 little-endian bytes, for patching size fields.
func EncodeLE32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}
