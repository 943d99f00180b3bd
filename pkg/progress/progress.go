// Package progress broadcasts pipeline stage progress over a websocket,
// adapted from the teacher's pkg/web Logs handler (which streams
// log.Logger's feed to a browser) generalized to a JSON progress event
// stream for `mosh serve` (SPEC_FULL.md §5, §6).
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stage names one pipeline phase, matching the Coordinator's stages.
type Stage string

// Stages, in pipeline order (SPEC_FULL.md §4.7).
const (
	StagePrep       Stage = "prep"
	StageDetect     Stage = "detect"
	StagePlan       Stage = "plan"
	StageExecute    Stage = "execute"
	StageBake       Stage = "bake"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Event is one progress update, JSON-encoded to every connected client.
type Event struct {
	Stage      Stage   `json:"stage"`
	PercentOf  float64 `json:"percent_of_stage"`
	Message    string  `json:"message,omitempty"`
	Err        string  `json:"error,omitempty"`
	AtUnixMilli int64  `json:"at_unix_milli"`
}

// Broadcaster fans Events out to every currently-subscribed websocket
// client. A run with no clients connected simply drops events.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}

	nowFunc func() time.Time
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan Event]struct{}),
		nowFunc: time.Now,
	}
}

// Publish stamps e.AtUnixMilli and fans it out to every subscriber,
// dropping it for any subscriber whose channel is full rather than
// blocking the pipeline.
func (b *Broadcaster) Publish(e Event) {
	e.AtUnixMilli = b.nowFunc().UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Broadcaster) subscribe() (chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.clients[ch]; ok {
			delete(b.clients, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

var upgrader = websocket.Upgrader{}

// Handler upgrades the request to a websocket and streams progress
// events as JSON text frames until the client disconnects.
func (b *Broadcaster) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer c.Close()

		feed, cancel := b.subscribe()
		defer cancel()

		for e := range feed {
			msg, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	})
}
