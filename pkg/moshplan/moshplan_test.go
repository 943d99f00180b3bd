package moshplan

import (
	"testing"

	"datamosh/pkg/container"
	"github.com/stretchr/testify/require"
)

func buildFrameIndex(types []container.CodecType) *container.FrameIndex {
	frames := make([]container.Frame, len(types))
	for i, ct := range types {
		frames[i] = container.Frame{
			ByteOffset:    int64(i * 100),
			ByteLength:    100,
			DecodingIndex: i,
			DisplayIndex:  i,
			IsFirst:       i == 0,
			CodecType:     ct,
		}
	}
	return &container.FrameIndex{Kind: container.KindAnnexBRaw, Frames: frames}
}

func TestPlanBloomSkipsFrameZero(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame, container.PFrame, container.IFrameIDR})
	cuts := []container.SceneCut{{AtDecodingIndex: 0, RightIFrameIndex: 0, Score: 0.9}}

	plan, err := PlanBloom(cuts, fi, Params{})
	require.NoError(t, err)
	require.Empty(t, plan.Ops)
}

func TestPlanBloomRemovesRightIFrame(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame, container.PFrame, container.IFrameIDR})
	cuts := []container.SceneCut{{AtDecodingIndex: 2, RightIFrameIndex: 3, Score: 0.9}}

	plan, err := PlanBloom(cuts, fi, Params{})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	require.Equal(t, container.OpRemoveFrame, plan.Ops[0].Kind)
	require.Equal(t, 3, plan.Ops[0].DecodingIndex)
}

func TestPlanBloomDedupesSameTarget(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame, container.IFrameIDR, container.PFrame})
	cuts := []container.SceneCut{
		{AtDecodingIndex: 1, RightIFrameIndex: 2, Score: 0.9},
		{AtDecodingIndex: 2, RightIFrameIndex: 2, Score: 0.9},
	}

	plan, err := PlanBloom(cuts, fi, Params{})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
}

func TestPlanBloomRespectsMinScore(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame, container.IFrameIDR})
	cuts := []container.SceneCut{{AtDecodingIndex: 1, RightIFrameIndex: 2, Score: 0.2}}

	plan, err := PlanBloom(cuts, fi, Params{MinScore: 0.5})
	require.NoError(t, err)
	require.Empty(t, plan.Ops)
}

func TestPlanBloomKeepsSoleIFrameAtIndexZero(t *testing.T) {
	// Only decoding_index 0 is an I-frame; removing it would leave none.
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame})
	cuts := []container.SceneCut{{AtDecodingIndex: 0, RightIFrameIndex: 0, Score: 0.9}}

	plan, err := PlanBloom(cuts, fi, Params{})
	require.NoError(t, err)
	require.Empty(t, plan.Ops) // index 0 is never targeted, so nothing to enforce here either way

	survives := false
	removed := map[int]bool{}
	for _, op := range plan.Ops {
		removed[op.DecodingIndex] = true
	}
	for _, f := range fi.Frames {
		if f.CodecType.IsKeyframe() && !removed[f.DecodingIndex] {
			survives = true
		}
	}
	require.True(t, survives)
}

func TestPlanMeltRejectsNonPFrame(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.BFrame, container.PFrame})

	_, err := PlanMelt(1, 3, fi)
	require.ErrorIs(t, err, ErrBadMeltTarget)
}

func TestPlanMeltRejectsOutOfRange(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame})

	_, err := PlanMelt(9, 3, fi)
	require.ErrorIs(t, err, ErrBadMeltTarget)
}

func TestPlanMeltRejectsZeroRepeatCount(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame})

	_, err := PlanMelt(1, 0, fi)
	require.ErrorIs(t, err, ErrBadMeltTarget)
}

func TestPlanMeltProducesDuplicateOp(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.PFrame})

	plan, err := PlanMelt(1, 5, fi)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	require.Equal(t, container.OpDuplicateFrame, plan.Ops[0].Kind)
	require.Equal(t, 5, plan.Ops[0].Count)
}

func TestPlanCombinedUnionsAndSorts(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{
		container.IFrameIDR, container.PFrame, container.PFrame, container.IFrameIDR, container.PFrame,
	})
	cuts := []container.SceneCut{{AtDecodingIndex: 2, RightIFrameIndex: 3, Score: 0.9}}
	melts := []MeltTarget{{DecodingIndex: 1, RepeatCount: 2}, {DecodingIndex: 4, RepeatCount: 1}}

	plan, err := PlanCombined(cuts, melts, fi, Params{})
	require.NoError(t, err)
	require.Len(t, plan.Ops, 3)
	require.Equal(t, 1, plan.Ops[0].DecodingIndex)
	require.Equal(t, 3, plan.Ops[1].DecodingIndex)
	require.Equal(t, 4, plan.Ops[2].DecodingIndex)
}

func TestPlanCombinedAbortsOnBadMelt(t *testing.T) {
	fi := buildFrameIndex([]container.CodecType{container.IFrameIDR, container.BFrame})
	melts := []MeltTarget{{DecodingIndex: 1, RepeatCount: 2}}

	_, err := PlanCombined(nil, melts, fi, Params{})
	require.ErrorIs(t, err, ErrBadMeltTarget)
}
