// Package container holds the shared data model for the datamosh engine:
// the byte-owning Container, its Frame/FrameIndex, and the EditOp/MoshPlan
// types that describe a bitstream edit without yet applying it.
//
// Ownership is tree-shaped (Design Notes, SPEC_FULL.md §9): a Container
// exclusively owns its raw byte buffer; a FrameIndex only borrows offset
// and length into that buffer and is valid only as long as the Container
// that produced it is open.
package container

import "fmt"

// CodecType classifies a single coded picture.
type CodecType int

// Recognized codec types. UNKNOWN frames are never removed or duplicated
// by the planner.
const (
	Unknown CodecType = iota
	IFrameIDR
	IFrameNonIDR
	PFrame
	BFrame
)

func (c CodecType) String() string {
	switch c {
	case IFrameIDR:
		return "I_IDR"
	case IFrameNonIDR:
		return "I_NON_IDR"
	case PFrame:
		return "P"
	case BFrame:
		return "B"
	default:
		return "UNKNOWN"
	}
}

// IsKeyframe reports whether c is either flavor of I-frame.
func (c CodecType) IsKeyframe() bool {
	return c == IFrameIDR || c == IFrameNonIDR
}

// Kind identifies which container format a Container holds.
type Kind int

// Supported container kinds.
const (
	KindAVI Kind = iota
	KindAnnexBRaw
)

func (k Kind) String() string {
	switch k {
	case KindAVI:
		return "AVI"
	case KindAnnexBRaw:
		return "ANNEX_B_RAW"
	default:
		return "UNKNOWN"
	}
}

// CodecHint tells the Frame Classifier which payload format to expect.
// It is independent of Kind: an AVI container can carry MPEG-4 ASP or
// H.264 Annex-B-style payloads depending on its video stream's FourCC.
type CodecHint int

// Supported codec hints.
const (
	HintUnknown CodecHint = iota
	HintH264AnnexB
	HintMPEG4ASP
)

// Frame is a single coded picture. Frames are immutable once classified;
// byte_offset/byte_length describe a borrowed range into the owning
// Container's buffer, not a copy.
type Frame struct {
	ByteOffset  int64
	ByteLength  int64

	// ChunkHeaderOffset/ChunkHeaderLength describe the wrapping chunk
	// header for containers that wrap frames (AVI); both are zero for
	// Annex-B streams, which have no per-frame wrapper.
	ChunkHeaderOffset int64
	ChunkHeaderLength int64

	// PadLength is the trailing pad byte present when a chunk's payload
	// size is odd (AVI words are 2-byte aligned). Zero for Annex-B.
	PadLength int64

	CodecType     CodecType
	DisplayIndex  int
	DecodingIndex int
	IsFirst       bool

	// SceneScore is filled in by the scene-cut detector; nil until then.
	SceneScore *float64
}

// TotalSpan returns the byte range, including any chunk header and pad,
// that this frame occupies in the source container.
func (f Frame) TotalSpan() (offset, length int64) {
	start := f.ByteOffset
	if f.ChunkHeaderLength > 0 {
		start = f.ChunkHeaderOffset
	}
	end := f.ByteOffset + f.ByteLength + f.PadLength
	return start, end - start
}

// FrameIndex is an ordered sequence of Frames for one video stream of one
// Container. It is built once per input and never mutated; edit
// operations reference frames by DecodingIndex.
type FrameIndex struct {
	Kind   Kind
	Frames []Frame
}

// ErrNoFrames is returned when an index would otherwise be empty.
var ErrNoFrames = fmt.Errorf("no video frames found")

// ErrBadIndex is returned when FrameIndex well-formedness invariants
// (strictly increasing offsets, contiguous decoding indices, exactly one
// first frame, at least one IDR) are violated.
var ErrBadIndex = fmt.Errorf("frame index invariant violated")

// Validate checks the well-formedness invariants from SPEC_FULL.md §3.
func (fi *FrameIndex) Validate() error {
	if len(fi.Frames) == 0 {
		return ErrNoFrames
	}

	var lastOffset int64 = -1
	firstCount := 0
	idrCount := 0
	for i, f := range fi.Frames {
		if f.ByteOffset <= lastOffset {
			return fmt.Errorf("%w: byte_offset not strictly increasing at decoding_index %d", ErrBadIndex, i)
		}
		lastOffset = f.ByteOffset

		if f.DecodingIndex != i {
			return fmt.Errorf("%w: decoding_index %d out of sequence (want %d)", ErrBadIndex, f.DecodingIndex, i)
		}
		if f.IsFirst {
			firstCount++
		}
		if f.CodecType == IFrameIDR {
			idrCount++
		}
	}

	if firstCount != 1 {
		return fmt.Errorf("%w: expected exactly one is_first frame, got %d", ErrBadIndex, firstCount)
	}
	if idrCount == 0 {
		return fmt.Errorf("%w: no I_IDR frame present", ErrBadIndex)
	}
	if !fi.Frames[0].IsFirst {
		return fmt.Errorf("%w: first frame in decoding order is not marked is_first", ErrBadIndex)
	}

	return nil
}

// ByDecodingIndex returns the frame with the given decoding index, or
// false if out of range.
func (fi *FrameIndex) ByDecodingIndex(idx int) (Frame, bool) {
	if idx < 0 || idx >= len(fi.Frames) {
		return Frame{}, false
	}
	return fi.Frames[idx], true
}

// SceneCut records a detected content discontinuity.
type SceneCut struct {
	AtDecodingIndex  int
	Score            float64
	LeftIFrameIndex  int
	RightIFrameIndex int
	// FarFromIFrame is set when the nearest I-frame is farther than the
	// detector's max_distance; such cuts are reported but considered
	// low-value for moshing.
	FarFromIFrame bool
}

// EditOpKind tags the variant of an EditOp.
type EditOpKind int

// Supported edit operations.
const (
	OpRemoveFrame EditOpKind = iota
	OpDuplicateFrame
	OpReplacePayload // Reserved; not emitted by the initial planner.
)

// EditOp is a single, tagged edit targeting one frame by decoding index.
type EditOp struct {
	Kind          EditOpKind
	DecodingIndex int

	// Count is the number of additional copies for OpDuplicateFrame (>=1).
	Count int

	// ReplacementBytes holds the new payload for OpReplacePayload.
	ReplacementBytes []byte
}

// MoshPlan is an ordered, conflict-free sequence of EditOps.
type MoshPlan struct {
	Ops []EditOp
}
