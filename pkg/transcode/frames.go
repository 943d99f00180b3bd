package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"datamosh/pkg/log"
	"datamosh/pkg/scenedetect"
)

const thumbSide = 16
const thumbBytes = thumbSide * thumbSide

// FrameSource implements scenedetect.PixelFrameSource by shelling out to
// the external transcoder once, up front, to decode inputPath to a
// sequence of 16x16 grayscale thumbnails (the "prep-transcode" stage of
// SPEC_FULL.md §4.7's external-transcoder contract) — a single scaled
// rawvideo pipe rather than one subprocess per frame.
type FrameSource struct {
	ffmpegBin string
	inputPath string
	log       *log.Logger
	newRunner NewRunnerFunc

	mu      sync.Mutex
	decoded bool
	thumbs  []scenedetect.Thumbnail
	err     error
}

// NewFrameSource returns a FrameSource that shells out to ffmpegBin on
// first use. l receives the transcoder's stderr; may be nil.
func NewFrameSource(ffmpegBin, inputPath string, l *log.Logger) *FrameSource {
	return &FrameSource{
		ffmpegBin: ffmpegBin,
		inputPath: inputPath,
		log:       l,
		newRunner: NewRunner,
	}
}

// Thumbnail decodes the whole input on first call and serves every
// subsequent call from the cached result.
func (f *FrameSource) Thumbnail(ctx context.Context, decodingIndex int) (scenedetect.Thumbnail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.decoded {
		f.thumbs, f.err = f.decodeAll(ctx)
		f.decoded = true
	}
	if f.err != nil {
		return scenedetect.Thumbnail{}, f.err
	}
	if decodingIndex < 0 || decodingIndex >= len(f.thumbs) {
		return scenedetect.Thumbnail{}, fmt.Errorf("%w: index %d out of decoded range (%d frames)",
			scenedetect.ErrDecoderUnavailable, decodingIndex, len(f.thumbs))
	}
	return f.thumbs[decodingIndex], nil
}

// decodeAll pipes inputPath through ffmpeg's scale filter down to
// 16x16 gray8 rawvideo and slices the resulting byte stream into
// thumbnails. Any failure to start or run the transcoder is reported as
// ErrDecoderUnavailable, which scenedetect.Detect treats as "no cuts
// found" rather than a pipeline failure.
func (f *FrameSource) decodeAll(ctx context.Context) ([]scenedetect.Thumbnail, error) {
	cmd := exec.Command(f.ffmpegBin,
		"-v", "error",
		"-i", f.inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", thumbSide, thumbSide),
		"-pix_fmt", "gray",
		"-f", "rawvideo",
		"-")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runner := f.newRunner(cmd)
	runner.SetPrefix("thumbnail-decode: ")
	if f.log != nil {
		runner.SetStderrLogger(f.log)
	}

	if err := runner.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", scenedetect.ErrDecoderUnavailable, err)
	}

	raw := stdout.Bytes()
	n := len(raw) / thumbBytes
	thumbs := make([]scenedetect.Thumbnail, n)
	for i := 0; i < n; i++ {
		copy(thumbs[i][:], raw[i*thumbBytes:(i+1)*thumbBytes])
	}
	return thumbs, nil
}
