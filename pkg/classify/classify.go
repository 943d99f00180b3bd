// Package classify assigns a container.CodecType to each Frame from its
// raw payload bytes and a codec hint (SPEC_FULL.md §4.3). It is
// deterministic and side-effect-free: it either classifies definitively
// or returns container.Unknown, never an error.
//
// Like the container parsers, codec support is a small dispatch table
// keyed by container.CodecHint rather than an interface hierarchy
// (SPEC_FULL.md §9).
package classify

import "datamosh/pkg/container"

// ClassifyFunc assigns a CodecType to one frame's raw payload.
type ClassifyFunc func(payload []byte) container.CodecType

var dispatch = map[container.CodecHint]ClassifyFunc{
	container.HintH264AnnexB: classifyH264AnnexB,
	container.HintMPEG4ASP:   classifyMPEG4ASP,
}

// Classify dispatches to the ClassifyFunc registered for hint. An
// unrecognized hint (or one with no registered function) always yields
// container.Unknown, never an error.
func Classify(hint container.CodecHint, payload []byte) container.CodecType {
	fn, ok := dispatch[hint]
	if !ok {
		return container.Unknown
	}
	return fn(payload)
}

// ClassifyFrameIndex classifies every frame of fi in place, reading each
// frame's payload from src. Frames are immutable once classified
// (SPEC_FULL.md §3); this is the one point where CodecType is assigned.
func ClassifyFrameIndex(src container.BufferSource, fi *container.FrameIndex, hint container.CodecHint) error {
	for i := range fi.Frames {
		f := &fi.Frames[i]
		payload, err := src.ReadRange(f.ByteOffset, f.ByteLength)
		if err != nil {
			return err
		}
		f.CodecType = Classify(hint, payload)
	}
	return nil
}
