// Package moshplan translates scene cuts and melt targets into an
// ordered, conflict-free MoshPlan (SPEC_FULL.md §4.5).
package moshplan

import (
	"fmt"
	"sort"

	"datamosh/pkg/container"
)

// ErrBadMeltTarget is returned when a melt is requested on a frame that
// is not a P-frame, is out of range, or when repeat_count < 1.
var ErrBadMeltTarget = fmt.Errorf("bad melt target")

// Params tunes BloomAtCuts.
type Params struct {
	// Limit caps the number of cuts acted on; 0 means all.
	Limit int
	// MinScore skips cuts scoring below this threshold.
	MinScore float64
}

// PlanBloom emits a RemoveFrame for each scene cut's right_i_frame_index,
// except index 0 (the first frame is never removed) and frames classified
// container.Unknown. Cuts are processed in order; MinScore is applied
// before deduplication, and Limit counts only cuts that yield a new op.
func PlanBloom(cuts []container.SceneCut, fi *container.FrameIndex, params Params) (*container.MoshPlan, error) {
	seen := map[int]bool{}
	var ops []container.EditOp

	acted := 0
	for _, cut := range cuts {
		if params.Limit > 0 && acted >= params.Limit {
			break
		}
		if cut.Score < params.MinScore {
			continue
		}
		target := cut.RightIFrameIndex
		if target == 0 {
			continue // Never remove the bitstream's first frame.
		}
		if f, ok := fi.ByDecodingIndex(target); ok && f.CodecType == container.Unknown {
			continue // Unknown frames are non-removable.
		}
		if seen[target] {
			continue // Tie-break: keep the earliest op for a given index.
		}
		seen[target] = true
		ops = append(ops, container.EditOp{Kind: container.OpRemoveFrame, DecodingIndex: target})
		acted++
	}

	plan := &container.MoshPlan{Ops: ops}
	sortOps(plan)
	return enforceIFramePreservation(plan, fi), nil
}

// PlanMelt validates that the frame at targetIndex is a P-frame and emits
// a DuplicateFrame op for it.
func PlanMelt(targetIndex, repeatCount int, fi *container.FrameIndex) (*container.MoshPlan, error) {
	if repeatCount < 1 {
		return nil, fmt.Errorf("%w: repeat_count must be >= 1, got %d", ErrBadMeltTarget, repeatCount)
	}
	f, ok := fi.ByDecodingIndex(targetIndex)
	if !ok {
		return nil, fmt.Errorf("%w: decoding_index %d out of range", ErrBadMeltTarget, targetIndex)
	}
	if f.CodecType != container.PFrame {
		return nil, fmt.Errorf("%w: frame %d is %v, not P", ErrBadMeltTarget, targetIndex, f.CodecType)
	}

	plan := &container.MoshPlan{Ops: []container.EditOp{
		{Kind: container.OpDuplicateFrame, DecodingIndex: targetIndex, Count: repeatCount},
	}}
	return plan, nil
}

// MeltTarget pairs a frame index with its repeat count for PlanCombined.
type MeltTarget struct {
	DecodingIndex int
	RepeatCount   int
}

// PlanCombined unions PlanBloom's scene-cut removals with a set of melt
// targets, sorted by decoding index. A melt target failing validation
// aborts the whole plan with ErrBadMeltTarget, per spec.md §8 Scenario 4.
func PlanCombined(cuts []container.SceneCut, melts []MeltTarget, fi *container.FrameIndex, params Params) (*container.MoshPlan, error) {
	bloom, err := PlanBloom(cuts, fi, params)
	if err != nil {
		return nil, err
	}

	ops := append([]container.EditOp{}, bloom.Ops...)
	seen := map[int]bool{}
	for _, op := range ops {
		seen[op.DecodingIndex] = true
	}

	for _, m := range melts {
		meltPlan, err := PlanMelt(m.DecodingIndex, m.RepeatCount, fi)
		if err != nil {
			return nil, err
		}
		op := meltPlan.Ops[0]
		if seen[op.DecodingIndex] {
			continue // Tie-break: keep the earliest (bloom's removal) op.
		}
		seen[op.DecodingIndex] = true
		ops = append(ops, op)
	}

	plan := &container.MoshPlan{Ops: ops}
	sortOps(plan)
	return enforceIFramePreservation(plan, fi), nil
}

func sortOps(plan *container.MoshPlan) {
	sort.Slice(plan.Ops, func(i, j int) bool {
		return plan.Ops[i].DecodingIndex < plan.Ops[j].DecodingIndex
	})
}

// enforceIFramePreservation drops the RemoveFrame op targeting the first
// I-frame in decoding order if, and only if, applying the plan as
// constructed would leave no I-frame in the stream (spec.md §4.5, §8
// invariant 6). This matters when frame 0 is not itself an I-frame, since
// PlanBloom never removes index 0.
func enforceIFramePreservation(plan *container.MoshPlan, fi *container.FrameIndex) *container.MoshPlan {
	removed := map[int]bool{}
	for _, op := range plan.Ops {
		if op.Kind == container.OpRemoveFrame {
			removed[op.DecodingIndex] = true
		}
	}

	anyIFrameSurvives := false
	for _, f := range fi.Frames {
		if f.CodecType.IsKeyframe() && !removed[f.DecodingIndex] {
			anyIFrameSurvives = true
			break
		}
	}
	if anyIFrameSurvives {
		return plan
	}

	// Drop the op removing the first I-frame, so that frame survives.
	firstI := -1
	for _, f := range fi.Frames {
		if f.CodecType.IsKeyframe() {
			firstI = f.DecodingIndex
			break
		}
	}
	var filtered []container.EditOp
	for _, op := range plan.Ops {
		if op.Kind == container.OpRemoveFrame && op.DecodingIndex == firstI {
			continue
		}
		filtered = append(filtered, op)
	}
	return &container.MoshPlan{Ops: filtered}
}
