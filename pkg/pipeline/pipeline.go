// Package pipeline coordinates prep, detection, planning, execution and
// bake into one run (SPEC_FULL.md §4.7 / spec.md §7). It is the only
// component that catches and annotates errors from the stages below it;
// every other package lets errors bubble up unchanged (spec.md §7
// propagation policy).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"datamosh/pkg/bitio"
	"datamosh/pkg/classify"
	"datamosh/pkg/container"
	"datamosh/pkg/container/annexb"
	"datamosh/pkg/container/avi"
	"datamosh/pkg/log"
	"datamosh/pkg/moshexec"
	"datamosh/pkg/moshplan"
	"datamosh/pkg/progress"
	"datamosh/pkg/resources"
	"datamosh/pkg/scenedetect"
	"datamosh/pkg/transcode"
)

// StageError annotates an error with the pipeline stage it surfaced
// from, per spec.md §7's StageFailure{stage, cause}.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// ErrCancelled is surfaced when ctx is cancelled at a stage boundary.
var ErrCancelled = fmt.Errorf("pipeline: cancelled")

// Intent selects which planning operation a run performs.
type Intent struct {
	// Bloom requests scene-cut-driven removal. Melt, if non-empty, is
	// unioned with Bloom's cuts (PlanCombined); if Bloom is false and
	// Melt is non-empty, only melts are planned.
	Bloom bool
	Melts []moshplan.MeltTarget
	Limit int
}

// Coordinator runs one mosh job end to end: it is single-threaded with
// respect to Run — a single call executes every stage sequentially on
// the caller's goroutine (spec.md §7 scheduling model).
type Coordinator struct {
	Config  Config
	Log     *log.Logger
	Progress *progress.Broadcaster

	// Decoder is consulted for scene-cut thumbnailing; nil disables
	// detection (Bloom intents then plan from zero cuts).
	Decoder scenedetect.PixelFrameSource

	// NewRunner builds the subprocess wrapper for the bake stage's
	// external transcoder invocation. Defaults to transcode.NewRunner;
	// overridable so tests don't need a real ffmpeg binary on PATH.
	NewRunner transcode.NewRunnerFunc

	resources *resources.Checker
}

// NewCoordinator returns a Coordinator with its own resource checker.
func NewCoordinator(cfg Config, l *log.Logger, p *progress.Broadcaster, decoder scenedetect.PixelFrameSource) *Coordinator {
	return &Coordinator{
		Config:    cfg,
		Log:       l,
		Progress:  p,
		Decoder:   decoder,
		NewRunner: transcode.NewRunner,
		resources: resources.NewChecker(),
	}
}

// Run executes prep->detect->plan->execute->bake against inputPath,
// writing outputPath, honoring intent. Cancellation is checked at each
// stage boundary; honored mid-stage only on a best-effort basis.
func (c *Coordinator) Run(ctx context.Context, inputPath, outputPath string, hint container.CodecHint, intent Intent) error {
	kind, err := detectKind(inputPath)
	if err != nil {
		return &StageError{Stage: "prep", Cause: err}
	}

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: "prep", Cause: ErrCancelled}
	}
	c.publish(progress.StagePrep, 0, "opening container")

	info, err := os.Stat(inputPath)
	if err != nil {
		return &StageError{Stage: "prep", Cause: fmt.Errorf("%w: %v", container.ErrIoFailure, err)}
	}
	strategy := c.resources.Decide(info.Size())

	src, err := bitio.Open(inputPath, kind, strategy)
	if err != nil {
		return &StageError{Stage: "prep", Cause: err}
	}
	defer src.Close()

	fi, layout, err := parseFrameIndex(src, kind)
	if err != nil {
		return &StageError{Stage: "prep", Cause: err}
	}

	if err := classify.ClassifyFrameIndex(src, fi, hint); err != nil {
		return &StageError{Stage: "prep", Cause: err}
	}

	if err := fi.Validate(); err != nil {
		return &StageError{Stage: "prep", Cause: err}
	}
	c.publish(progress.StagePrep, 1, "classified frames")

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: "detect", Cause: ErrCancelled}
	}

	var cuts []container.SceneCut
	if c.Decoder != nil {
		cuts, err = scenedetect.Detect(ctx, c.Decoder, fi, scenedetect.Params{
			Threshold:   c.Config.SceneThreshold,
			MaxDistance: scenedetect.DefaultParams().MaxDistance,
		})
		if err != nil {
			return &StageError{Stage: "detect", Cause: err}
		}
	}
	if len(cuts) == 0 {
		c.Log.Warn().Src("pipeline").Stage("detect").Msg("NoScenes: detector found no cuts above threshold")
	}
	c.publish(progress.StageDetect, 1, fmt.Sprintf("%d cuts found", len(cuts)))

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: "plan", Cause: ErrCancelled}
	}

	plan, err := c.buildPlan(cuts, fi, intent)
	if err != nil {
		return &StageError{Stage: "plan", Cause: err}
	}
	c.publish(progress.StagePlan, 1, fmt.Sprintf("%d edit ops planned", len(plan.Ops)))

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: "execute", Cause: ErrCancelled}
	}

	if err := c.checkOutputSpace(outputPath, info.Size()); err != nil {
		return &StageError{Stage: "execute", Cause: err}
	}

	intermediatePath := intermediatePathFor(outputPath, kind)
	execOpts := moshexec.Options{
		PreserveFrameCount: c.Config.PreserveFrameCount,
		RebuildIndex:       c.Config.RebuildIndex,
	}
	if err := moshexec.Execute(src, fi, plan, layout, intermediatePath, execOpts); err != nil {
		return &StageError{Stage: "execute", Cause: err}
	}
	if !c.Config.KeepIntermediates {
		defer os.Remove(intermediatePath)
	}
	c.publish(progress.StageExecute, 1, "moshed intermediate written")

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: "bake", Cause: ErrCancelled}
	}
	c.publish(progress.StageBake, 0, "transcoding")

	if err := c.bake(ctx, intermediatePath, outputPath); err != nil {
		return &StageError{Stage: "bake", Cause: err}
	}
	c.publish(progress.StageBake, 1, "bake complete")
	c.publish(progress.StageDone, 1, "")

	return nil
}

// bake runs the external transcoder over the mosh executor's
// intermediate output, producing the final deliverable at outputPath.
// This is the "bake" half of the external-transcoder contract
// (SPEC_FULL.md §4.7, §6): the coordinator invokes the configured
// binary synchronously, captures its stderr through c.Log, and aborts
// with ErrFreeze if outputPath stops receiving writes.
func (c *Coordinator) bake(ctx context.Context, intermediatePath, outputPath string) error {
	// The watchdog needs outputPath to already exist before it can
	// watch it for writes.
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create bake output: %v", container.ErrIoFailure, err)
	}
	f.Close()

	cmd := exec.Command(c.Config.FFmpegBin,
		"-y", "-v", "error",
		"-i", intermediatePath,
		"-c:v", c.Config.BakeCodec,
		"-crf", strconv.Itoa(c.Config.BakeCRF),
		outputPath)

	newRunner := c.NewRunner
	if newRunner == nil {
		newRunner = transcode.NewRunner
	}
	runner := newRunner(cmd)
	runner.SetPrefix("bake: ")
	if c.Log != nil {
		runner.SetStderrLogger(c.Log)
	}

	bakeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var froze atomic.Bool
	watchdog := transcode.NewFreezeWatchdog(outputPath, c.Log, func() {
		froze.Store(true)
		cancel()
	})
	go watchdog.Start(bakeCtx)

	if err := runner.Start(bakeCtx); err != nil {
		if froze.Load() {
			return transcode.ErrFreeze
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("bake: transcoder exited: %w", err)
	}
	return nil
}

// intermediatePathFor derives the mosh executor's scratch output path
// from the final outputPath, keeping the same container kind so the
// bake stage's transcoder can still sniff its format.
func intermediatePathFor(outputPath string, kind container.Kind) string {
	ext := ".avi"
	if kind == container.KindAnnexBRaw {
		ext = ".264"
	}
	return outputPath + ".premosh" + ext
}

func (c *Coordinator) buildPlan(cuts []container.SceneCut, fi *container.FrameIndex, intent Intent) (*container.MoshPlan, error) {
	params := moshplan.Params{Limit: intent.Limit, MinScore: 0}

	switch {
	case intent.Bloom && len(intent.Melts) > 0:
		return moshplan.PlanCombined(cuts, intent.Melts, fi, params)
	case intent.Bloom:
		return moshplan.PlanBloom(cuts, fi, params)
	case len(intent.Melts) == 1:
		return moshplan.PlanMelt(intent.Melts[0].DecodingIndex, intent.Melts[0].RepeatCount, fi)
	case len(intent.Melts) > 1:
		return moshplan.PlanCombined(nil, intent.Melts, fi, params)
	default:
		return &container.MoshPlan{}, nil
	}
}

func (c *Coordinator) checkOutputSpace(outputPath string, inputSize int64) error {
	// The output can at most be input size plus duplications; a loose
	// projection of 2x input size is a conservative upper bound for the
	// pre-flight check (spec.md §7 invariant 7: size is monotonic per op).
	return c.resources.CheckDiskSpace(filepath.Dir(outputPath), inputSize*2)
}

func (c *Coordinator) publish(stage progress.Stage, percent float64, msg string) {
	if c.Progress == nil {
		return
	}
	c.Progress.Publish(progress.Event{Stage: stage, PercentOf: percent, Message: msg})
}

func detectKind(path string) (container.Kind, error) {
	ext := filepath.Ext(path)
	switch ext {
	case ".avi":
		return container.KindAVI, nil
	case ".264", ".h264", ".m4v", ".mp4v":
		return container.KindAnnexBRaw, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized extension %q", container.ErrFormatUnsupported, ext)
	}
}

func parseFrameIndex(src *bitio.Container, kind container.Kind) (*container.FrameIndex, *avi.Layout, error) {
	switch kind {
	case container.KindAVI:
		fi, layout, err := avi.Parse(src)
		return fi, layout, err
	case container.KindAnnexBRaw:
		fi, err := annexb.Parse(src)
		return fi, nil, err
	default:
		return nil, nil, fmt.Errorf("%w: kind %v", container.ErrFormatUnsupported, kind)
	}
}
