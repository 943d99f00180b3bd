package scenedetect

import (
	"context"
	"testing"

	"datamosh/pkg/container"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	thumbs []Thumbnail
	err    error
}

func (f *fakeSource) Thumbnail(ctx context.Context, decodingIndex int) (Thumbnail, error) {
	if f.err != nil {
		return Thumbnail{}, f.err
	}
	return f.thumbs[decodingIndex], nil
}

func flat(v byte) Thumbnail {
	var t Thumbnail
	for i := range t {
		t[i] = v
	}
	return t
}

func frameIndex(n int, idrAt int) *container.FrameIndex {
	frames := make([]container.Frame, n)
	for i := 0; i < n; i++ {
		frames[i] = container.Frame{
			ByteOffset:    int64(i * 100),
			ByteLength:    100,
			DecodingIndex: i,
			DisplayIndex:  i,
			IsFirst:       i == 0,
			CodecType:     container.PFrame,
		}
	}
	frames[idrAt].CodecType = container.IFrameIDR
	return &container.FrameIndex{Kind: container.KindAnnexBRaw, Frames: frames}
}

func TestDetectFindsCutAboveThreshold(t *testing.T) {
	src := &fakeSource{thumbs: []Thumbnail{flat(0), flat(0), flat(255), flat(255)}}
	fi := frameIndex(4, 0)

	cuts, err := Detect(context.Background(), src, fi, Params{Threshold: 0.35, MaxDistance: 12})
	require.NoError(t, err)
	require.Len(t, cuts, 1)
	require.Equal(t, 2, cuts[0].AtDecodingIndex)
	require.InDelta(t, 1.0, cuts[0].Score, 0.001)
}

func TestDetectNoCutsBelowThreshold(t *testing.T) {
	src := &fakeSource{thumbs: []Thumbnail{flat(0), flat(5), flat(10), flat(15)}}
	fi := frameIndex(4, 0)

	cuts, err := Detect(context.Background(), src, fi, Params{Threshold: 0.9, MaxDistance: 12})
	require.NoError(t, err)
	require.Len(t, cuts, 0)
}

func TestDetectFewerThanTwoFramesReturnsEmpty(t *testing.T) {
	src := &fakeSource{thumbs: []Thumbnail{flat(0)}}
	fi := frameIndex(1, 0)

	cuts, err := Detect(context.Background(), src, fi, DefaultParams())
	require.NoError(t, err)
	require.Empty(t, cuts)
}

func TestDetectDecoderUnavailableReturnsEmptyNotError(t *testing.T) {
	src := &fakeSource{err: ErrDecoderUnavailable}
	fi := frameIndex(4, 0)

	cuts, err := Detect(context.Background(), src, fi, DefaultParams())
	require.NoError(t, err)
	require.Empty(t, cuts)
}

func TestDetectAssignsSceneScoreInPlace(t *testing.T) {
	src := &fakeSource{thumbs: []Thumbnail{flat(0), flat(128)}}
	fi := frameIndex(2, 0)

	_, err := Detect(context.Background(), src, fi, DefaultParams())
	require.NoError(t, err)
	require.Nil(t, fi.Frames[0].SceneScore)
	require.NotNil(t, fi.Frames[1].SceneScore)
}

func TestDetectFlagsFarFromIFrame(t *testing.T) {
	n := 20
	thumbs := make([]Thumbnail, n)
	for i := range thumbs {
		thumbs[i] = flat(0)
	}
	thumbs[15] = flat(255)
	src := &fakeSource{thumbs: thumbs}
	fi := frameIndex(n, 0) // only decoding_index 0 is an I-frame

	// Frame 15 differs from both neighbours, so boundaries 14->15 and
	// 15->16 each score 1.0 and both are reported.
	cuts, err := Detect(context.Background(), src, fi, Params{Threshold: 0.35, MaxDistance: 5})
	require.NoError(t, err)
	require.Len(t, cuts, 2)
	require.True(t, cuts[0].FarFromIFrame)
}
