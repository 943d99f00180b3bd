package transcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"datamosh/pkg/log"
)

// ErrFreeze means the bake stage produced no output for longer than the
// watchdog's interval, adapted from addons/watchdog's HLS-manifest
// polling to watch the bake stage's output file instead.
var ErrFreeze = errors.New("possible freeze detected")

const defaultFreezeInterval = 30 * time.Second

// FreezeWatchdog cancels a bake run if outputPath stops receiving writes
// for longer than Interval.
type FreezeWatchdog struct {
	outputPath string
	interval   time.Duration
	onFreeze   func()

	log *log.Logger
}

// NewFreezeWatchdog returns a watchdog over outputPath. The watchdog
// waits Interval, then watches outputPath for up to another Interval;
// onFreeze is called (once) from a background goroutine if no write
// arrives during that watch. Each observed write restarts the cycle, so a
// freeze is reported between one and two Intervals after the last write
// seen.
func NewFreezeWatchdog(outputPath string, l *log.Logger, onFreeze func()) *FreezeWatchdog {
	return &FreezeWatchdog{
		outputPath: outputPath,
		interval:   defaultFreezeInterval,
		onFreeze:   onFreeze,
		log:        l,
	}
}

// SetInterval overrides the default freeze interval.
func (d *FreezeWatchdog) SetInterval(interval time.Duration) {
	d.interval = interval
}

// Start runs the watchdog loop until ctx is canceled.
func (d *FreezeWatchdog) Start(ctx context.Context) {
	watchFile := func() error {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.Add(d.outputPath); err != nil {
			return err
		}
		for {
			select {
			case <-watcher.Events: // file updated, process not frozen.
				return nil
			case <-time.After(d.interval):
				return fmt.Errorf("%w, aborting bake", ErrFreeze)
			case err := <-watcher.Errors:
				return err
			case <-ctx.Done():
				return nil
			}
		}
	}

	for {
		select {
		case <-time.After(d.interval):
		case <-ctx.Done():
			return
		}
		if err := watchFile(); err != nil {
			d.log.Error().Src("transcode").Stage("bake").Msgf("watchdog: %v", err)
			d.onFreeze()
			return
		}
	}
}
