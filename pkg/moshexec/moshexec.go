// Package moshexec applies a container.MoshPlan to a parsed FrameIndex,
// producing a bit-exact edited output file via bitio.WriteComposed
// (SPEC_FULL.md §4.6 / spec.md §4.6). Every byte outside an edited frame
// or a rewritten header/index region is copied verbatim from the source.
package moshexec

import (
	"fmt"

	"datamosh/pkg/bitio"
	"datamosh/pkg/container"
	"datamosh/pkg/container/avi"
)

// ErrPlanInvalid means the plan references a decoding_index outside the
// FrameIndex, or two ops target the same index.
var ErrPlanInvalid = fmt.Errorf("moshexec: invalid plan")

// ErrOverflowSize means the computed output size exceeds what a 32-bit
// RIFF size field can hold.
var ErrOverflowSize = fmt.Errorf("moshexec: output size overflows RIFF 32-bit size field")

// Options mirrors the executor config of spec.md §6.
type Options struct {
	// PreserveFrameCount substitutes the next frame's payload into a
	// removed frame's chunk slot instead of deleting it outright, so the
	// output keeps the same frame count and duration (AVI only).
	PreserveFrameCount bool
	// RebuildIndex regenerates the idx1 table from the new layout. If
	// false, idx1 is dropped from AVI output entirely.
	RebuildIndex bool
}

// DefaultOptions matches spec.md §6's defaults.
func DefaultOptions() Options {
	return Options{PreserveFrameCount: true, RebuildIndex: true}
}

// Execute writes the edited container to outPath. layout is non-nil for
// AVI sources (container-aware header/index rewriting applies); nil for
// raw Annex-B/ASP bitstreams, which have no headers to patch.
func Execute(src *bitio.Container, fi *container.FrameIndex, plan *container.MoshPlan, layout *avi.Layout, outPath string, opts Options) error {
	ops, err := opsByIndex(plan, fi)
	if err != nil {
		return err
	}

	if layout != nil {
		return executeAVI(src, fi, ops, layout, outPath, opts)
	}
	return executeRaw(src, fi, ops, outPath)
}

func opsByIndex(plan *container.MoshPlan, fi *container.FrameIndex) (map[int]container.EditOp, error) {
	ops := make(map[int]container.EditOp, len(plan.Ops))
	for _, op := range plan.Ops {
		if op.DecodingIndex < 0 || op.DecodingIndex >= len(fi.Frames) {
			return nil, fmt.Errorf("%w: decoding_index %d out of range", ErrPlanInvalid, op.DecodingIndex)
		}
		if _, exists := ops[op.DecodingIndex]; exists {
			return nil, fmt.Errorf("%w: two ops target decoding_index %d", ErrPlanInvalid, op.DecodingIndex)
		}
		if op.Kind == container.OpRemoveFrame && op.DecodingIndex == 0 {
			return nil, fmt.Errorf("%w: RemoveFrame{0} would drop the stream's first frame", ErrPlanInvalid)
		}
		ops[op.DecodingIndex] = op
	}
	return ops, nil
}

// executeRaw handles Annex-B/ASP bitstreams: frames are concatenated
// start-code-delimited spans with no container header to patch.
func executeRaw(src *bitio.Container, fi *container.FrameIndex, ops map[int]container.EditOp, outPath string) error {
	var chunks []bitio.Chunk

	for _, f := range fi.Frames {
		op, has := ops[f.DecodingIndex]
		if !has {
			chunks = append(chunks, bitio.Chunk{SrcOffset: f.ByteOffset, Length: f.ByteLength})
			continue
		}

		switch op.Kind {
		case container.OpRemoveFrame:
			// No container duration metadata to preserve; dropping the
			// frame's bytes entirely is the only option for raw streams.
		case container.OpDuplicateFrame:
			chunks = append(chunks, bitio.Chunk{SrcOffset: f.ByteOffset, Length: f.ByteLength})
			for i := 0; i < op.Count; i++ {
				chunks = append(chunks, bitio.Chunk{SrcOffset: f.ByteOffset, Length: f.ByteLength})
			}
		default:
			return fmt.Errorf("%w: unsupported op kind %v for raw bitstream", ErrPlanInvalid, op.Kind)
		}
	}

	return bitio.WriteComposed(src, outPath, chunks)
}

// executeAVI rewrites an AVI container's movi content per ops, then
// patches the RIFF and movi LIST size fields and rebuilds (or drops)
// idx1, all computed from the new frame layout before any bytes are
// written (the "two-pass measurement" of spec.md §4.6).
func executeAVI(src *bitio.Container, fi *container.FrameIndex, ops map[int]container.EditOp, layout *avi.Layout, outPath string, opts Options) error {
	moviChunks, indexEntries, err := buildMoviContent(src, fi, ops, layout, opts)
	if err != nil {
		return err
	}

	var moviContentSize int64
	for _, c := range moviChunks {
		moviContentSize += chunkLen(c)
	}

	var idx1Chunks []bitio.Chunk
	if opts.RebuildIndex {
		payload := avi.BuildIndexTable(indexEntries)
		idx1Chunks = []bitio.Chunk{
			{Bytes: []byte("idx1")},
			{Bytes: avi.EncodeLE32(uint32(len(payload)))},
			{Bytes: payload},
		}
	}
	var idx1Size int64
	for _, c := range idx1Chunks {
		idx1Size += chunkLen(c)
	}

	preMoviLen := layout.MoviListOffset
	tailStart := layout.MoviContentEnd
	tailEnd := src.Size()
	if layout.HasIdx1 {
		tailEnd = layout.Idx1Offset
	}
	tailLen := tailEnd - tailStart

	moviListSize := 4 /* "movi" */ + moviContentSize
	totalSize := preMoviLen + 8 /* LIST+size */ + moviListSize + tailLen + idx1Size
	riffSize := totalSize - 8
	if riffSize > 0xFFFFFFFF || moviListSize > 0xFFFFFFFF {
		return ErrOverflowSize
	}

	var chunks []bitio.Chunk
	chunks = append(chunks,
		bitio.Chunk{SrcOffset: 0, Length: 4},                       // "RIFF"
		bitio.Chunk{Bytes: avi.EncodeLE32(uint32(riffSize))},        // patched size
		bitio.Chunk{SrcOffset: 8, Length: layout.MoviListOffset - 8}, // "AVI " through hdrl etc.
		bitio.Chunk{SrcOffset: layout.MoviListOffset, Length: 4},     // "LIST"
		bitio.Chunk{Bytes: avi.EncodeLE32(uint32(moviListSize))},     // patched size
		bitio.Chunk{SrcOffset: layout.MoviListOffset + 8, Length: 4}, // "movi"
	)
	chunks = append(chunks, moviChunks...)
	if tailLen > 0 {
		chunks = append(chunks, bitio.Chunk{SrcOffset: tailStart, Length: tailLen})
	}
	chunks = append(chunks, idx1Chunks...)

	return bitio.WriteComposed(src, outPath, chunks)
}

func chunkLen(c bitio.Chunk) int64 {
	if c.IsLiteral() {
		return int64(len(c.Bytes))
	}
	return c.Length
}

// buildMoviContent walks fi's frames in decoding order, applying ops,
// and returns the movi-content chunk list plus the idx1 entries
// describing it (offsets relative to the new movi content start).
func buildMoviContent(src *bitio.Container, fi *container.FrameIndex, ops map[int]container.EditOp, layout *avi.Layout, opts Options) ([]bitio.Chunk, []avi.IndexEntry, error) {
	var chunks []bitio.Chunk
	var entries []avi.IndexEntry
	var cursor int64

	emitFrameCopy := func(f container.Frame) {
		total := f.ChunkHeaderLength + f.ByteLength + f.PadLength
		chunks = append(chunks, bitio.Chunk{SrcOffset: f.ChunkHeaderOffset, Length: total})
		entries = append(entries, avi.IndexEntry{
			ChunkID:        avi.ChunkFourCC(layout.StreamNumber),
			Flags:          keyframeFlag(f),
			OffsetFromMovi: uint32(cursor),
			Size:           uint32(f.ByteLength),
		})
		cursor += total
	}

	emitSubstitute := func(removed, payload container.Frame) {
		size := payload.ByteLength
		pad := int64(0)
		if size&1 == 1 {
			pad = 1
		}
		fourcc := avi.ChunkFourCC(layout.StreamNumber)
		header := avi.EncodeChunkHeader(string(fourcc[:]), uint32(size))
		chunks = append(chunks,
			bitio.Chunk{Bytes: header},
			bitio.Chunk{SrcOffset: payload.ByteOffset, Length: size},
		)
		if pad == 1 {
			chunks = append(chunks, bitio.Chunk{Bytes: []byte{0}})
		}
		entries = append(entries, avi.IndexEntry{
			ChunkID:        avi.ChunkFourCC(layout.StreamNumber),
			Flags:          keyframeFlag(payload),
			OffsetFromMovi: uint32(cursor),
			Size:           uint32(size),
		})
		cursor += 8 + size + pad
	}

	for i, f := range fi.Frames {
		op, has := ops[f.DecodingIndex]
		if !has {
			emitFrameCopy(f)
			continue
		}

		switch op.Kind {
		case container.OpRemoveFrame:
			if opts.PreserveFrameCount && i+1 < len(fi.Frames) {
				emitSubstitute(f, fi.Frames[i+1])
			}
			// Else: drop the frame's bytes entirely, reducing frame count.

		case container.OpDuplicateFrame:
			emitFrameCopy(f)
			for n := 0; n < op.Count; n++ {
				emitFrameCopy(f)
			}

		default:
			return nil, nil, fmt.Errorf("%w: unsupported op kind %v for AVI", ErrPlanInvalid, op.Kind)
		}
	}

	if len(entries) == 0 {
		return nil, nil, container.ErrNoFrames
	}
	return chunks, entries, nil
}

func keyframeFlag(f container.Frame) uint32 {
	if f.CodecType.IsKeyframe() {
		return avi.IndexFlagKeyframe
	}
	return 0
}
