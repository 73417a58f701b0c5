// Package playback supplies the playback instant the overlay resolves poses
// for. The host owns the clock; the resolver only ever sees its position.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/timeutil"
)

var (
	// ErrInvalidRate is returned by SetRate for non-positive rates.
	ErrInvalidRate = errors.New("playback rate must be positive")
	// ErrNegativeSeek is returned by Seek for offsets before the start of the video.
	ErrNegativeSeek = errors.New("seek target before start of video")
)

// Clock reports the current playback position.
type Clock interface {
	Position() pose.TimeOffset
}

// Controller is a clock the host can steer. *WallClock implements it.
type Controller interface {
	Clock
	Play() Status
	Pause() Status
	Seek(t pose.TimeOffset) (Status, error)
	SetRate(rate float64) (Status, error)
	Status() Status
}

// Status is a snapshot of a WallClock.
type Status struct {
	Position pose.TimeOffset `json:"position_ns"`
	Seconds  float64         `json:"position_s"`
	Playing  bool            `json:"playing"`
	Rate     float64         `json:"rate"`
}

// WallClock advances the playback position with wall time while playing.
// Position is recomputed from an anchor on every read, so it never drifts
// with tick jitter.
type WallClock struct {
	clock timeutil.Clock

	mu         sync.Mutex
	playing    bool
	rate       float64
	anchorWall time.Time
	anchorPos  pose.TimeOffset
	end        pose.TimeOffset // 0 means unbounded
}

// NewWallClock returns a paused clock at position zero. A nil clock uses
// the real wall clock.
func NewWallClock(clock timeutil.Clock) *WallClock {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WallClock{clock: clock, rate: 1}
}

// SetEnd bounds the position to [0, end]. Playback pauses on reaching it.
func (c *WallClock) SetEnd(end pose.TimeOffset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if end < 0 {
		end = 0
	}
	c.end = end
}

// Position implements Clock.
func (c *WallClock) Position() pose.TimeOffset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *WallClock) positionLocked() pose.TimeOffset {
	pos := c.anchorPos
	if c.playing {
		elapsed := c.clock.Since(c.anchorWall)
		pos += pose.TimeOffset(float64(elapsed) * c.rate)
	}
	if c.end > 0 && pos >= c.end {
		pos = c.end
		if c.playing {
			c.playing = false
			c.anchorPos = pos
			monitoring.Logf("[playback] reached end at %s", pos)
		}
	}
	return pos
}

// reanchor freezes the current position so a state change applies from now.
func (c *WallClock) reanchor() {
	c.anchorPos = c.positionLocked()
	c.anchorWall = c.clock.Now()
}

// Play resumes playback from the current position.
func (c *WallClock) Play() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor()
	c.playing = true
	return c.statusLocked()
}

// Pause freezes the position.
func (c *WallClock) Pause() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor()
	c.playing = false
	return c.statusLocked()
}

// Seek moves the position to t, preserving the play state.
func (c *WallClock) Seek(t pose.TimeOffset) (Status, error) {
	if t < 0 {
		return Status{}, fmt.Errorf("seek to %s: %w", t, ErrNegativeSeek)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end > 0 && t > c.end {
		t = c.end
	}
	c.anchorPos = t
	c.anchorWall = c.clock.Now()
	return c.statusLocked(), nil
}

// SetRate changes the playback speed multiplier.
func (c *WallClock) SetRate(rate float64) (Status, error) {
	if rate <= 0 {
		return Status{}, fmt.Errorf("rate %.2f: %w", rate, ErrInvalidRate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor()
	c.rate = rate
	return c.statusLocked(), nil
}

// Status returns the current state.
func (c *WallClock) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *WallClock) statusLocked() Status {
	pos := c.positionLocked()
	return Status{Position: pos, Seconds: pos.Seconds(), Playing: c.playing, Rate: c.rate}
}

// ManualClock holds a position set by the host, such as the currentTime a
// browser video element reports.
type ManualClock struct {
	mu  sync.RWMutex
	pos pose.TimeOffset
}

// Set records the host-reported position.
func (c *ManualClock) Set(t pose.TimeOffset) {
	c.mu.Lock()
	c.pos = t
	c.mu.Unlock()
}

// Position implements Clock.
func (c *ManualClock) Position() pose.TimeOffset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}
