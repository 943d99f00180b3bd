package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerFeedAndSubscribe(t *testing.T) {
	l := NewLogger(10)

	feed, cancel := l.Subscribe()
	defer cancel()

	l.Info().Src("plan").Stage("plan").Msgf("built plan with %d ops", 3)

	got := <-feed
	require.Equal(t, LevelInfo, got.Level)
	require.Equal(t, "plan", got.Src)
	require.Equal(t, "plan", got.Stage)
	require.Equal(t, "built plan with 3 ops", got.Msg)
}

func TestLoggerRingBufferCap(t *testing.T) {
	l := NewLogger(2)

	l.Error().Msg("first")
	l.Error().Msg("second")
	l.Error().Msg("third")

	recent := l.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "second", recent[0].Msg)
	require.Equal(t, "third", recent[1].Msg)
}

func TestLoggerUnsubscribeDoesNotPanic(t *testing.T) {
	l := NewLogger(10)
	_, cancel := l.Subscribe()
	cancel()
	l.Info().Msg("after unsubscribe")
}
