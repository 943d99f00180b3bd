// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package log provides a leveled, structured logger for a single pipeline run.
package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// UnixMillisecond is a millisecond-resolution unix timestamp.
type UnixMillisecond uint64

// Event is an in-flight log entry being built up before Msg/Msgf sends it.
type Event struct {
	level Level
	time  UnixMillisecond
	src   string // Source component, e.g. "prep", "plan".
	stage string // Pipeline stage, if any.

	logger *Logger
}

// Log is a finalized log entry.
type Log struct {
	Level Level
	Time  UnixMillisecond
	Msg   string
	Src   string
	Stage string
}

// Src sets the event's source component.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Stage sets the event's pipeline stage.
func (e *Event) Stage(stage string) *Event {
	e.stage = stage
	return e
}

// Time sets the event's timestamp, overriding the default of now.
func (e *Event) Time(t time.Time) *Event {
	e.time = UnixMillisecond(t.UnixNano() / 1_000_000)
	return e
}

// Msg sends the event with msg added as the message field.
func (e *Event) Msg(msg string) {
	l := Log{
		Time:  e.time,
		Level: e.level,
		Msg:   msg,
		Src:   e.src,
		Stage: e.stage,
	}
	e.logger.feed(l)
}

// Msgf sends the event with a formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

// Feed is a read-only stream of logs.
type Feed <-chan Log

// Logger fans log events out to subscribers and an in-memory ring buffer.
//
// Unlike the long-running NVR server this was adapted from, a pipeline run
// is one-shot and produces no durable history (SPEC_FULL.md §6: persisted
// state is none), so there is no backing database here — only the ring
// buffer and whatever sinks the caller attaches.
type Logger struct {
	mu   sync.Mutex
	subs map[chan Log]struct{}

	ring    []Log
	ringCap int
}

// NewLogger returns a Logger with a ring buffer of the given capacity.
func NewLogger(ringCap int) *Logger {
	if ringCap <= 0 {
		ringCap = 1000
	}
	return &Logger{
		subs:    make(map[chan Log]struct{}),
		ringCap: ringCap,
	}
}

func (l *Logger) feed(entry Log) {
	l.mu.Lock()
	l.ring = append(l.ring, entry)
	if len(l.ring) > l.ringCap {
		l.ring = l.ring[len(l.ring)-l.ringCap:]
	}
	for ch := range l.subs {
		select {
		case ch <- entry:
		default:
			// Slow subscriber; drop rather than block the pipeline.
		}
	}
	l.mu.Unlock()
}

// CancelFunc cancels a log feed subscription.
type CancelFunc func()

// Subscribe returns a channel of future log entries and a CancelFunc.
func (l *Logger) Subscribe() (Feed, CancelFunc) {
	ch := make(chan Log, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns a snapshot of the most recently logged entries.
func (l *Logger) Recent() []Log {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Log, len(l.ring))
	copy(out, l.ring)
	return out
}

// LogToStdout prints the log feed to stdout until ctx is canceled.
func (l *Logger) LogToStdout(ctx context.Context) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case entry := <-feed:
			printLog(entry)
		case <-ctx.Done():
			return
		}
	}
}

func printLog(entry Log) {
	var output string

	switch entry.Level {
	case LevelError:
		output += "[ERROR] "
	case LevelWarning:
		output += "[WARNING] "
	case LevelInfo:
		output += "[INFO] "
	case LevelDebug:
		output += "[DEBUG] "
	}

	if entry.Stage != "" {
		output += entry.Stage + ": "
	}
	if entry.Src != "" {
		output += strings.Title(entry.Src) + ": " //nolint:staticcheck
	}

	output += entry.Msg
	fmt.Println(output)
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   UnixMillisecond(time.Now().UnixNano() / 1_000_000),
		logger: l,
	}
}

// Error starts a new event at error level.
func (l *Logger) Error() *Event { return l.newEvent(LevelError) }

// Warn starts a new event at warning level.
func (l *Logger) Warn() *Event { return l.newEvent(LevelWarning) }

// Info starts a new event at info level.
func (l *Logger) Info() *Event { return l.newEvent(LevelInfo) }

// Debug starts a new event at debug level.
func (l *Logger) Debug() *Event { return l.newEvent(LevelDebug) }

// Level starts a new event at the given level.
func (l *Logger) Level(level Level) *Event { return l.newEvent(level) }
