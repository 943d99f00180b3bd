// Command mosh is the CLI front end for the datamosh engine: bloom (remove
// I-frames at scene cuts), melt (duplicate a P-frame), inspect (print frame
// types), and serve (run a job while streaming progress over a websocket).
// Exit codes follow SPEC_FULL.md §6's table, adapted from the teacher's
// start/start.go flag handling and pkg/web's serve-mode wiring.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"datamosh/pkg/bitio"
	"datamosh/pkg/classify"
	"datamosh/pkg/container"
	"datamosh/pkg/container/annexb"
	"datamosh/pkg/container/avi"
	"datamosh/pkg/log"
	"datamosh/pkg/moshplan"
	"datamosh/pkg/pipeline"
	"datamosh/pkg/progress"
	"datamosh/pkg/scenedetect"
	"datamosh/pkg/transcode"
)

// Exit codes, per SPEC_FULL.md §6.
const (
	exitOK               = 0
	exitBadArgs          = 2
	exitPrepFail         = 3
	exitNoCuts           = 4
	exitPlanEmpty        = 5
	exitBadMeltTarget    = 6
	exitTranscoderFreeze = 7
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitBadArgs)
	}

	var code int
	switch os.Args[1] {
	case "bloom":
		code = runBloom(os.Args[2:])
	case "melt":
		code = runMelt(os.Args[2:])
	case "inspect":
		code = runInspect(os.Args[2:])
	case "serve":
		code = runServe(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
		code = exitOK
	default:
		fmt.Fprintf(os.Stderr, "mosh: unknown command %q\n\n", os.Args[1])
		printUsage()
		code = exitBadArgs
	}
	os.Exit(code)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `mosh - datamosh engine

Usage:
  mosh bloom   input output [--threshold=0.35] [--limit=N] [--config=FILE]
  mosh melt    input output --at=INDEX[,INDEX...] --count=N [--config=FILE]
  mosh inspect input
  mosh serve   input output --intent=bloom|melt --at=... --count=N [--progress-addr=:8088]
`)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBloom(args []string) int {
	fs := flag.NewFlagSet("bloom", flag.ContinueOnError)
	threshold := fs.Float64("threshold", 0.35, "scene-cut score threshold")
	limit := fs.Int("limit", 0, "max cuts to act on (0 = all)")
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "mosh bloom: requires input and output paths")
		return exitBadArgs
	}
	input, output := fs.Arg(0), fs.Arg(1)

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh bloom:", err)
		return exitBadArgs
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			cfg.SceneThreshold = *threshold
		}
	})

	l := log.NewLogger(0)
	go l.LogToStdout(context.Background())

	ctx, stop := signalContext()
	defer stop()

	decoder := transcode.NewFrameSource(cfg.FFmpegBin, input, l)
	coord := pipeline.NewCoordinator(cfg, l, nil, decoder)
	intent := pipeline.Intent{Bloom: true, Limit: *limit}

	err = coord.Run(ctx, input, output, hintFor(input), intent)
	return exitForRunErr(err)
}

func runMelt(args []string) int {
	fs := flag.NewFlagSet("melt", flag.ContinueOnError)
	at := fs.String("at", "", "comma-separated decoding indices to melt")
	count := fs.Int("count", 1, "number of extra copies per target")
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}
	if fs.NArg() < 2 || *at == "" {
		fmt.Fprintln(os.Stderr, "mosh melt: requires input, output and --at=INDEX[,INDEX...]")
		return exitBadArgs
	}
	input, output := fs.Arg(0), fs.Arg(1)

	targets, err := parseMeltTargets(*at, *count)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh melt:", err)
		return exitBadArgs
	}

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh melt:", err)
		return exitBadArgs
	}

	l := log.NewLogger(0)
	go l.LogToStdout(context.Background())

	ctx, stop := signalContext()
	defer stop()

	coord := pipeline.NewCoordinator(cfg, l, nil, nil)
	intent := pipeline.Intent{Melts: targets}

	err = coord.Run(ctx, input, output, hintFor(input), intent)
	return exitForRunErr(err)
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "mosh inspect: requires input path")
		return exitBadArgs
	}
	input := fs.Arg(0)

	kind, err := classifyKind(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh inspect:", err)
		return exitBadArgs
	}

	src, err := bitio.Open(input, kind, bitio.StrategyLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh inspect:", err)
		return exitPrepFail
	}
	defer src.Close()

	var fi *container.FrameIndex
	switch kind {
	case container.KindAVI:
		fi, _, err = avi.Parse(src)
	case container.KindAnnexBRaw:
		fi, err = annexb.Parse(src)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh inspect:", err)
		return exitPrepFail
	}

	if err := classify.ClassifyFrameIndex(src, fi, hintFor(input)); err != nil {
		fmt.Fprintln(os.Stderr, "mosh inspect:", err)
		return exitPrepFail
	}

	for _, f := range fi.Frames {
		fmt.Printf("%d\t%s\t%d bytes\n", f.DecodingIndex, f.CodecType, f.ByteLength)
	}
	return exitOK
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	intentName := fs.String("intent", "bloom", "bloom|melt")
	at := fs.String("at", "", "comma-separated decoding indices for melt")
	count := fs.Int("count", 1, "extra copies per melt target")
	threshold := fs.Float64("threshold", 0.35, "scene-cut score threshold")
	limit := fs.Int("limit", 0, "max cuts to act on (0 = all)")
	progressAddr := fs.String("progress-addr", ":8088", "address to serve progress websocket on")
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "mosh serve: requires input and output paths")
		return exitBadArgs
	}
	input, output := fs.Arg(0), fs.Arg(1)

	var intent pipeline.Intent
	switch *intentName {
	case "bloom":
		intent = pipeline.Intent{Bloom: true, Limit: *limit}
	case "melt":
		targets, err := parseMeltTargets(*at, *count)
		if err != nil {
			fmt.Fprintln(os.Stderr, "mosh serve:", err)
			return exitBadArgs
		}
		intent = pipeline.Intent{Melts: targets}
	default:
		fmt.Fprintf(os.Stderr, "mosh serve: unknown --intent=%q\n", *intentName)
		return exitBadArgs
	}

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosh serve:", err)
		return exitBadArgs
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			cfg.SceneThreshold = *threshold
		}
	})

	l := log.NewLogger(0)
	bcast := progress.NewBroadcaster()

	mux := http.NewServeMux()
	mux.Handle("/progress", bcast.Handler())
	server := &http.Server{Addr: *progressAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error().Src("serve").Msgf("progress server: %v", err)
		}
	}()

	ctx, stop := signalContext()
	defer stop()

	// Melt-only intents never consult scene cuts, so they skip standing
	// up a decoder.
	var decoder scenedetect.PixelFrameSource
	if intent.Bloom {
		decoder = transcode.NewFrameSource(cfg.FFmpegBin, input, l)
	}
	coord := pipeline.NewCoordinator(cfg, l, bcast, decoder)
	runErr := coord.Run(ctx, input, output, hintFor(input), intent)

	_ = server.Close()
	return exitForRunErr(runErr)
}

func parseMeltTargets(at string, count int) ([]moshplan.MeltTarget, error) {
	parts := strings.Split(at, ",")
	targets := make([]moshplan.MeltTarget, 0, len(parts))
	for _, p := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --at index %q: %w", p, err)
		}
		targets = append(targets, moshplan.MeltTarget{DecodingIndex: idx, RepeatCount: count})
	}
	return targets, nil
}

func classifyKind(path string) (container.Kind, error) {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "avi":
		return container.KindAVI, nil
	case "264", "h264", "m4v", "mp4v":
		return container.KindAnnexBRaw, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized extension %q", container.ErrFormatUnsupported, ext)
	}
}

func hintFor(path string) container.CodecHint {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "264", "h264":
		return container.HintH264AnnexB
	case "m4v", "mp4v":
		return container.HintMPEG4ASP
	default:
		return container.HintH264AnnexB
	}
}

// exitForRunErr maps a pipeline error to SPEC_FULL.md §6's exit codes,
// unwrapping the StageError the coordinator always wraps its failures in.
func exitForRunErr(err error) int {
	if err == nil {
		return exitOK
	}

	cause := err
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		cause = stageErr.Cause
	}

	switch {
	case errors.Is(cause, moshplan.ErrBadMeltTarget):
		return exitBadMeltTarget
	case errors.Is(cause, container.ErrNoFrames):
		return exitPlanEmpty
	case errors.Is(cause, transcode.ErrFreeze):
		return exitTranscoderFreeze
	default:
		fmt.Fprintln(os.Stderr, "mosh:", err)
		return exitPrepFail
	}
}
