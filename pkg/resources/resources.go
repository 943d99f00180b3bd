// Package resources performs the pre-flight resource check that decides
// whether a container is loaded onto the heap or mmap'd, and whether
// enough disk headroom exists for the output file (SPEC_FULL.md §5).
package resources

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"datamosh/pkg/bitio"
)

// ErrInsufficientDisk means free disk space on the output path's
// filesystem is smaller than the projected output size plus margin.
var ErrInsufficientDisk = fmt.Errorf("resources: insufficient disk space")

type (
	memFunc  func() (*mem.VirtualMemoryStat, error)
	diskFunc func(path string) (*disk.UsageStat, error)
)

// Checker decides mmap-vs-load strategy and validates disk headroom
// before a mosh run begins. Its gopsutil calls are swappable for tests.
type Checker struct {
	mem  memFunc
	disk diskFunc

	// MarginBytes is added to the projected output size when checking
	// free disk space. Defaults to 64MiB in NewChecker.
	MarginBytes int64
}

// NewChecker returns a Checker backed by live gopsutil sampling.
func NewChecker() *Checker {
	return &Checker{
		mem:         mem.VirtualMemory,
		disk:        diskUsage,
		MarginBytes: 64 * 1024 * 1024,
	}
}

func diskUsage(path string) (*disk.UsageStat, error) {
	return disk.Usage(path)
}

// mmapLoadMargin is the fraction of available RAM a container's size
// may occupy before Mmap is preferred over a full heap Load.
const mmapLoadMargin = 0.5

// Decide picks bitio.StrategyLoad when fileSize comfortably fits within
// available memory (a full heap read is simpler and just as fast for a
// small file), else bitio.StrategyMmap, which never commits the whole
// file to the heap at once and so stays safe under memory pressure for
// large inputs. A gopsutil failure is non-fatal: it falls back to
// StrategyLoad, matching the small-file default.
func (c *Checker) Decide(fileSize int64) bitio.OpenStrategy {
	vm, err := c.mem()
	if err != nil {
		return bitio.StrategyLoad
	}
	if float64(fileSize) > float64(vm.Available)*mmapLoadMargin {
		return bitio.StrategyMmap
	}
	return bitio.StrategyLoad
}

// CheckDiskSpace verifies the filesystem backing outputDir has at least
// projectedSize+MarginBytes free. A gopsutil failure is returned wrapped
// (with %w), not as ErrInsufficientDisk.
func (c *Checker) CheckDiskSpace(outputDir string, projectedSize int64) error {
	usage, err := c.disk(outputDir)
	if err != nil {
		return fmt.Errorf("resources: disk usage %q: %w", outputDir, err)
	}
	need := projectedSize + c.MarginBytes
	if int64(usage.Free) < need {
		return fmt.Errorf("%w: need %d bytes, have %d free on %q",
			ErrInsufficientDisk, need, usage.Free, outputDir)
	}
	return nil
}
