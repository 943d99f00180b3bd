// Package avi parses and rewrites the AVI RIFF container: the primary
// variant of SPEC_FULL.md §4.2. It recognizes the "RIFF"/"AVI " magic,
// walks the LIST/chunk hierarchy down to the movi list, and records one
// Frame per NNdc/NNdb chunk belonging to the primary video stream.
//
// Chunk-walking follows the structure of the other_examples AVI
// demuxer/muxer reference (charlescerisier/vdk's format/avi package),
// adapted to work directly against a mapped byte buffer (via
// datamosh/pkg/bitio) instead of a streaming io.Reader, and to the
// teacher's fmt.Errorf("...: %w", err) wrapping idiom.
package avi

import (
	"encoding/binary"
	"fmt"

	"datamosh/pkg/container"
)

// FourCCs used while walking the AVI chunk tree.
const (
	fccRIFF = "RIFF"
	fccAVI  = "AVI "
	fccLIST = "LIST"
	fccHdrl = "hdrl"
	fccMovi = "movi"
	fccIdx1 = "idx1"
	fccAvih = "avih"
	fccStrl = "strl"
	fccStrh = "strh"
	fccVids = "vids"
)

// IndexEntrySize is the fixed width of one idx1 record: 4cc + flags +
// offset-relative-to-movi + size (SPEC_FULL.md / spec.md §6).
const IndexEntrySize = 16

// IndexFlagKeyframe marks an idx1 entry as a keyframe (AVIIF_KEYFRAME).
const IndexFlagKeyframe = 0x10

// Layout records the byte regions of an AVI file that the executor needs
// to patch or preserve: the RIFF/movi/LIST size fields to rewrite, the
// verbatim header bytes preceding movi, and the idx1 tail.
type Layout struct {
	RiffSizeOffset int64 // offset of the 4-byte RIFF size field.

	MoviListOffset     int64 // offset of the movi LIST's own "LIST" fourcc.
	MoviListSizeOffset int64 // offset of the movi LIST's size field.
	MoviContentOffset  int64 // first byte after the "movi" fourcc.
	MoviContentEnd     int64 // exclusive end of the movi list's content.

	HasIdx1    bool
	Idx1Offset int64 // offset of the "idx1" fourcc, if present.
	Idx1Length int64 // payload length (not including the 8-byte header).

	// StreamNumber is the two-digit stream id ("00", "01", ...) of the
	// primary video stream whose NNdc/NNdb chunks populate the FrameIndex.
	StreamNumber string
}

// ErrNotAVI is returned when the RIFF/AVI magic is missing.
var ErrNotAVI = fmt.Errorf("%w: not an AVI file", container.ErrFormatUnsupported)

// ErrTruncatedChunk is returned when a chunk's declared size runs past EOF.
var ErrTruncatedChunk = fmt.Errorf("%w: chunk size extends past end of file", container.ErrContainerCorrupt)

// ErrNoMovi is returned when no movi LIST is found.
var ErrNoMovi = fmt.Errorf("%w: no movi list found", container.ErrContainerCorrupt)

// ErrNoVideoChunks is returned when movi contains no NNdc/NNdb chunks.
var ErrNoVideoChunks = fmt.Errorf("%w: movi list has no video chunks", container.ErrContainerCorrupt)

// Parse reads c's AVI structure and returns a FrameIndex plus the Layout
// needed to rewrite headers and the idx1 table after editing.
func Parse(c container.BufferSource) (*container.FrameIndex, *Layout, error) {
	size := c.Size()
	if size < 12 {
		return nil, nil, fmt.Errorf("%w: file too small for RIFF header", ErrTruncatedChunk)
	}

	head, err := c.ReadRange(0, 12)
	if err != nil {
		return nil, nil, err
	}
	if string(head[0:4]) != fccRIFF || string(head[8:12]) != fccAVI {
		return nil, nil, ErrNotAVI
	}

	layout := &Layout{RiffSizeOffset: 4}

	cursor := int64(12)
	var moviFound bool

	for cursor+8 <= size {
		fourcc, chunkSize, err := readChunkHeader(c, cursor)
		if err != nil {
			return nil, nil, err
		}
		bodyOffset := cursor + 8
		if bodyOffset+int64(chunkSize) > size {
			return nil, nil, fmt.Errorf("%w: chunk %q at offset %d", ErrTruncatedChunk, fourcc, cursor)
		}

		switch fourcc {
		case fccLIST:
			listType, err := readFourCC(c, bodyOffset)
			if err != nil {
				return nil, nil, err
			}
			switch listType {
			case fccHdrl:
				if err := findPrimaryVideoStream(c, bodyOffset+4, int64(chunkSize)-4, layout); err != nil {
					return nil, nil, err
				}
			case fccMovi:
				layout.MoviListOffset = cursor
				layout.MoviListSizeOffset = cursor + 4
				layout.MoviContentOffset = bodyOffset + 4
				layout.MoviContentEnd = bodyOffset + int64(chunkSize)
				moviFound = true
			}

		case fccIdx1:
			layout.HasIdx1 = true
			layout.Idx1Offset = cursor
			layout.Idx1Length = int64(chunkSize)
		}

		cursor = bodyOffset + int64(chunkSize)
		if chunkSize&1 == 1 {
			cursor++ // word-align pad byte.
		}
	}

	if !moviFound {
		return nil, nil, ErrNoMovi
	}
	if layout.StreamNumber == "" {
		layout.StreamNumber = "00"
	}

	fi, err := buildFrameIndex(c, layout)
	if err != nil {
		return nil, nil, err
	}
	return fi, layout, nil
}

func readChunkHeader(c container.BufferSource, offset int64) (fourcc string, size uint32, err error) {
	b, err := c.ReadRange(offset, 8)
	if err != nil {
		return "", 0, err
	}
	return string(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), nil
}

func readFourCC(c container.BufferSource, offset int64) (string, error) {
	b, err := c.ReadRange(offset, 4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// findPrimaryVideoStream walks hdrl's strl sub-lists looking for the
// first vids stream, recording its two-digit stream number in layout.
func findPrimaryVideoStream(c container.BufferSource, start, size int64, layout *Layout) error {
	cursor := start
	end := start + size
	streamIndex := -1

	for cursor+8 <= end {
		fourcc, chunkSize, err := readChunkHeader(c, cursor)
		if err != nil {
			return err
		}
		bodyOffset := cursor + 8

		if fourcc == fccLIST {
			listType, err := readFourCC(c, bodyOffset)
			if err != nil {
				return err
			}
			if listType == fccStrl {
				streamIndex++
				isVideo, err := strlIsVideo(c, bodyOffset+4, int64(chunkSize)-4)
				if err != nil {
					return err
				}
				if isVideo && layout.StreamNumber == "" {
					layout.StreamNumber = fmt.Sprintf("%02d", streamIndex)
				}
			}
		}

		cursor = bodyOffset + int64(chunkSize)
		if chunkSize&1 == 1 {
			cursor++
		}
	}
	return nil
}

func strlIsVideo(c container.BufferSource, start, size int64) (bool, error) {
	cursor := start
	end := start + size
	for cursor+8 <= end {
		fourcc, chunkSize, err := readChunkHeader(c, cursor)
		if err != nil {
			return false, err
		}
		bodyOffset := cursor + 8
		if fourcc == fccStrh {
			typ, err := readFourCC(c, bodyOffset)
			if err != nil {
				return false, err
			}
			return typ == fccVids, nil
		}
		cursor = bodyOffset + int64(chunkSize)
		if chunkSize&1 == 1 {
			cursor++
		}
	}
	return false, nil
}

// buildFrameIndex walks the movi list's content and records one Frame per
// chunk whose fourcc is "<StreamNumber>dc" or "<StreamNumber>db".
func buildFrameIndex(c container.BufferSource, layout *Layout) (*container.FrameIndex, error) {
	dcTag := layout.StreamNumber + "dc"
	dbTag := layout.StreamNumber + "db"

	var frames []container.Frame
	cursor := layout.MoviContentOffset
	display := 0

	for cursor+8 <= layout.MoviContentEnd {
		fourcc, chunkSize, err := readChunkHeader(c, cursor)
		if err != nil {
			return nil, err
		}
		bodyOffset := cursor + 8

		if fourcc == dcTag || fourcc == dbTag {
			pad := int64(0)
			if chunkSize&1 == 1 {
				pad = 1
			}
			frames = append(frames, container.Frame{
				ByteOffset:        bodyOffset,
				ByteLength:        int64(chunkSize),
				ChunkHeaderOffset: cursor,
				ChunkHeaderLength: 8,
				PadLength:         pad,
				DisplayIndex:      display,
				DecodingIndex:     display,
			})
			display++
		}

		cursor = bodyOffset + int64(chunkSize)
		if chunkSize&1 == 1 {
			cursor++
		}
	}

	if len(frames) == 0 {
		return nil, ErrNoVideoChunks
	}
	frames[0].IsFirst = true

	return &container.FrameIndex{Kind: container.KindAVI, Frames: frames}, nil
}

// ParseIndexOnly discards the Layout, for callers (the dispatch table,
// `mosh inspect`) that only need the FrameIndex.
func ParseIndexOnly(c container.BufferSource) (*container.FrameIndex, error) {
	fi, _, err := Parse(c)
	return fi, err
}

func init() {
	container.Register(container.KindAVI, ParseIndexOnly)
}
