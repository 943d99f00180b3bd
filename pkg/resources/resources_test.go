package resources

import (
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"

	"datamosh/pkg/bitio"
)

func TestDecideChoosesLoadWhenFileComfortablyFitsInMemory(t *testing.T) {
	c := &Checker{mem: func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: 8 << 30}, nil
	}}
	require.Equal(t, bitio.StrategyLoad, c.Decide(1<<20))
}

func TestDecideChoosesMmapWhenFileIsLargeRelativeToMemory(t *testing.T) {
	c := &Checker{mem: func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: 10 << 20}, nil
	}}
	require.Equal(t, bitio.StrategyMmap, c.Decide(9<<20))
}

func TestDecideFallsBackToLoadOnMemError(t *testing.T) {
	c := &Checker{mem: func() (*mem.VirtualMemoryStat, error) {
		return nil, assertErr
	}}
	require.Equal(t, bitio.StrategyLoad, c.Decide(1))
}

func TestCheckDiskSpaceOK(t *testing.T) {
	c := &Checker{
		disk: func(path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Free: 1 << 30}, nil
		},
		MarginBytes: 1024,
	}
	require.NoError(t, c.CheckDiskSpace("/tmp", 1<<20))
}

func TestCheckDiskSpaceInsufficient(t *testing.T) {
	c := &Checker{
		disk: func(path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Free: 100}, nil
		},
		MarginBytes: 1024,
	}
	err := c.CheckDiskSpace("/tmp", 1<<20)
	require.ErrorIs(t, err, ErrInsufficientDisk)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
