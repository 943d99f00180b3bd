package transcode

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datamosh/pkg/log"
)

func TestFreezeWatchdogFiresOnNoWrites(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bake-out-*")
	require.NoError(t, err)
	f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	d := NewFreezeWatchdog(f.Name(), log.NewLogger(0), func() { close(done) })
	d.SetInterval(20 * time.Millisecond)

	go d.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestFreezeWatchdogResetsOnWrite(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bake-out-*")
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := false
	d := NewFreezeWatchdog(f.Name(), log.NewLogger(0), func() { fired = true })
	d.SetInterval(30 * time.Millisecond)

	go d.Start(ctx)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.WriteString("x")
		f.Sync()
		time.Sleep(10 * time.Millisecond)
	}
	require.False(t, fired)
}
