package transcode

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datamosh/pkg/log"
)

func TestFakeProcess(t *testing.T) {
	if os.Getenv("GO_TEST_PROCESS") != "1" {
		return
	}
	if os.Getenv("SLEEP") == "1" {
		time.Sleep(1 * time.Hour)
	}
	os.Stdout.WriteString("out")
	os.Stderr.WriteString("err")
	os.Exit(0)
}

func fakeExecCommand() *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=TestFakeProcess")
	cmd.Env = []string{"GO_TEST_PROCESS=1"}
	return cmd
}

func TestRunnerRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewRunner(fakeExecCommand())
	err := p.Start(ctx)
	require.NoError(t, err)
}

func TestRunnerLogsStdoutAndStderr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.NewLogger(0)
	feed, unsub := logger.Subscribe()
	defer unsub()

	p := NewRunner(fakeExecCommand())
	p.SetTimeout(0)
	p.SetPrefix("test ")
	p.SetStdoutLogger(logger)
	p.SetStderrLogger(logger)

	require.NoError(t, p.Start(ctx))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case entry := <-feed:
			seen[entry.Msg] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for log entry")
		}
	}
	require.True(t, seen["test out"])
	require.True(t, seen["test err"])
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	cmd := exec.Command(os.Args[0], "-test.run=TestFakeProcess")
	cmd.Env = []string{"GO_TEST_PROCESS=1", "SLEEP=1"}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewRunner(cmd)
	p.SetTimeout(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not stop after cancel")
	}
}
