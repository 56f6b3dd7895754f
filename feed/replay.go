// feed/replay.go
package feed

import (
	"sync"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

// ReplayFeed plays a pre-built event sequence into the channel, for
// simulation runs against the paper broker. Events are delivered in the
// order given, as fast as the consumer drains them.
type ReplayFeed struct {
	mu sync.Mutex

	sequence  []Event
	events    chan Event
	isRunning bool
	stopChan  chan struct{}
}

// NewReplayFeed creates a replay feed over a prepared sequence. Use
// BarEvents and SyntheticTicks to build one from bar history.
func NewReplayFeed(sequence []Event) *ReplayFeed {
	return &ReplayFeed{
		sequence: sequence,
		events:   make(chan Event),
		stopChan: make(chan struct{}),
	}
}

// Events returns the delivery channel. It closes once the sequence is
// exhausted or the feed is stopped.
func (f *ReplayFeed) Events() <-chan Event {
	return f.events
}

// Start begins playback.
func (f *ReplayFeed) Start() error {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return nil
	}
	f.isRunning = true
	f.mu.Unlock()

	logs.Infof("[REPLAY] Starting playback of %d events", len(f.sequence))

	go func() {
		defer close(f.events)
		for _, ev := range f.sequence {
			select {
			case f.events <- ev:
			case <-f.stopChan:
				return
			}
		}
		logs.Infof("[REPLAY] Playback complete")
	}()
	return nil
}

// Stop aborts playback.
func (f *ReplayFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isRunning {
		return
	}
	f.isRunning = false
	close(f.stopChan)
}
