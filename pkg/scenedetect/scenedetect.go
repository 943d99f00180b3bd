// Package scenedetect finds scene cuts in a decoded frame sequence using
// a 16x16 grayscale thumbnail and normalized sum-of-absolute-differences
// (SAD) comparison (SPEC_FULL.md §4.4 / spec.md §4.4).
//
// A decoder that cannot be reached (ErrDecoderUnavailable), or a stream
// with fewer than two frames, yields an empty cut list rather than an
// error (spec.md §4.4 edge cases); any other decode error is returned.
package scenedetect

import (
	"context"
	"errors"
	"fmt"

	"datamosh/pkg/container"
)

const thumbSide = 16

// Thumbnail is a flattened 16x16 grayscale (0-255) frame sample.
type Thumbnail [thumbSide * thumbSide]byte

// PixelFrameSource decodes a frame at a given decoding_index to a 16x16
// grayscale thumbnail. Implementations wrap an external decoder (a
// subprocess, per SPEC_FULL.md §4.7); ErrDecoderUnavailable signals that
// no decoder could be reached for the whole run.
type PixelFrameSource interface {
	Thumbnail(ctx context.Context, decodingIndex int) (Thumbnail, error)
}

// ErrDecoderUnavailable means the configured decoder could not be
// reached at all (process failed to start, codec unsupported by the
// decoder, etc). Detect treats this as "no cuts found", not a failure.
var ErrDecoderUnavailable = fmt.Errorf("scenedetect: decoder unavailable")

// Params tunes cut detection.
type Params struct {
	// Threshold is the minimum normalized SAD score (0.0-1.0) for a
	// frame boundary to be reported as a cut.
	Threshold float64
	// MaxDistance is the greatest decoding-index distance to an I-frame
	// on either side before a cut is flagged FarFromIFrame.
	MaxDistance int
}

// DefaultParams matches spec.md §4.4's suggested defaults.
func DefaultParams() Params {
	return Params{Threshold: 0.35, MaxDistance: 60}
}

// Detect walks fi's frames in decoding order, thumbnailing each pair via
// src and scoring their difference. Scores are attached to fi.Frames in
// place (container.Frame.SceneScore); the returned cuts list holds only
// boundaries scoring at or above params.Threshold.
//
// If src returns ErrDecoderUnavailable on any call, or fi has
// fewer than two frames, Detect returns an empty, non-nil cut list and a
// nil error: scene-cut detection is best-effort (spec.md §4.4).
func Detect(ctx context.Context, src PixelFrameSource, fi *container.FrameIndex, params Params) ([]container.SceneCut, error) {
	if len(fi.Frames) < 2 {
		return []container.SceneCut{}, nil
	}

	thumbs := make([]Thumbnail, len(fi.Frames))
	first, err := src.Thumbnail(ctx, fi.Frames[0].DecodingIndex)
	if err != nil {
		if isDecoderUnavailable(err) {
			return []container.SceneCut{}, nil
		}
		return nil, fmt.Errorf("scenedetect: decode frame 0: %w", err)
	}
	thumbs[0] = first

	var cuts []container.SceneCut
	for i := 1; i < len(fi.Frames); i++ {
		t, err := src.Thumbnail(ctx, fi.Frames[i].DecodingIndex)
		if err != nil {
			if isDecoderUnavailable(err) {
				return []container.SceneCut{}, nil
			}
			return nil, fmt.Errorf("scenedetect: decode frame %d: %w", i, err)
		}
		thumbs[i] = t

		score := normalizedSAD(thumbs[i-1], thumbs[i])
		s := score
		fi.Frames[i].SceneScore = &s

		if score >= params.Threshold {
			left, right := nearestIFrames(fi, i, params.MaxDistance)
			cuts = append(cuts, container.SceneCut{
				AtDecodingIndex:  i,
				Score:            score,
				LeftIFrameIndex:  left,
				RightIFrameIndex: right,
				FarFromIFrame:    farFromIFrame(fi, i, left, right, params.MaxDistance),
			})
		}
	}

	if cuts == nil {
		cuts = []container.SceneCut{}
	}
	return cuts, nil
}

func isDecoderUnavailable(err error) bool {
	return errors.Is(err, ErrDecoderUnavailable)
}

// normalizedSAD returns the mean absolute pixel difference between two
// thumbnails, normalized to [0.0, 1.0].
func normalizedSAD(a, b Thumbnail) float64 {
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a)*255)
}

// nearestIFrames returns the decoding_index of the nearest I-frame at or
// before idx, and the nearest at or after idx.
func nearestIFrames(fi *container.FrameIndex, idx, maxDistance int) (left, right int) {
	left = -1
	for i := idx; i >= 0 && idx-i <= maxDistance; i-- {
		if fi.Frames[i].CodecType.IsKeyframe() {
			left = i
			break
		}
	}
	right = -1
	for i := idx; i < len(fi.Frames) && i-idx <= maxDistance; i++ {
		if fi.Frames[i].CodecType.IsKeyframe() {
			right = i
			break
		}
	}
	if left == -1 {
		left = nearestIFrameUnbounded(fi, idx, -1)
	}
	if right == -1 {
		right = nearestIFrameUnbounded(fi, idx, 1)
	}
	return left, right
}

func nearestIFrameUnbounded(fi *container.FrameIndex, idx, step int) int {
	for i := idx; i >= 0 && i < len(fi.Frames); i += step {
		if fi.Frames[i].CodecType.IsKeyframe() {
			return i
		}
	}
	return 0
}

func farFromIFrame(fi *container.FrameIndex, idx, left, right, maxDistance int) bool {
	distLeft := idx - left
	if distLeft < 0 {
		distLeft = -distLeft
	}
	distRight := right - idx
	if distRight < 0 {
		distRight = -distRight
	}
	min := distLeft
	if distRight < min {
		min = distRight
	}
	return min > maxDistance
}
