package overlay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/timeutil"
)

// Frame is what a Presenter receives on each tick.
type Frame struct {
	T     pose.TimeOffset   `json:"t_ns"`
	Poses []pose.PoseObject `json:"poses"`
	Scene Scene             `json:"scene"`
}

// Presenter draws or forwards a frame.
type Presenter interface {
	Present(ctx context.Context, f Frame) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, f Frame) error

// Present implements Presenter.
func (fn PresenterFunc) Present(ctx context.Context, f Frame) error { return fn(ctx, f) }

// TickDebug is a snapshot of the most recent tick, kept for diagnostics.
type TickDebug struct {
	At           time.Time       `json:"at"`
	T            pose.TimeOffset `json:"t_ns"`
	ActiveTracks int             `json:"active_tracks"`
	Poses        int             `json:"poses"`
	Ticks        uint64          `json:"ticks"`
	Err          string          `json:"error,omitempty"`
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	Resolver  *pose.Resolver
	Position  playback.Clock
	Presenter Presenter
	Style     Style
	Options   BuildOptions

	// Interval between ticks; defaults to 33ms.
	Interval time.Duration
	// Clock drives the ticker; defaults to the real clock.
	Clock timeutil.Clock
}

// Loop re-resolves and re-presents the overlay on every tick of the host's
// display cadence. It holds no interpolation state: each tick reads the
// playback position and asks the resolver afresh.
type Loop struct {
	cfg LoopConfig

	mu   sync.RWMutex
	last TickDebug
}

// NewLoop returns a Loop; call Run to start it.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Loop{cfg: cfg}
}

// Run ticks until ctx is cancelled. Ticks before the dataset is ready are
// skipped; a presenter error is logged and the loop carries on.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	monitoring.Logf("[overlay] loop started (interval=%s)", l.cfg.Interval)
	waiting := false
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[overlay] loop stopped")
			return ctx.Err()
		case now := <-ticker.C():
			err := l.Tick(ctx, now)
			switch {
			case errors.Is(err, pose.ErrNotReady):
				if !waiting {
					monitoring.Logf("[overlay] waiting for annotations")
					waiting = true
				}
			case err != nil:
				monitoring.Logf("[overlay] tick failed: %v", err)
			default:
				waiting = false
			}
		}
	}
}

// Tick performs one resolve/build/present cycle at the current playback
// position.
func (l *Loop) Tick(ctx context.Context, now time.Time) error {
	t := l.cfg.Position.Position()
	dbg := TickDebug{At: now, T: t}

	frame, active, err := l.frame(t)
	if err == nil {
		dbg.ActiveTracks = active
		dbg.Poses = len(frame.Poses)
		if l.cfg.Presenter != nil {
			err = l.cfg.Presenter.Present(ctx, frame)
		}
	}
	if err != nil {
		dbg.Err = err.Error()
	}

	l.mu.Lock()
	dbg.Ticks = l.last.Ticks + 1
	l.last = dbg
	l.mu.Unlock()
	return err
}

func (l *Loop) frame(t pose.TimeOffset) (Frame, int, error) {
	active, err := l.cfg.Resolver.Index().TracksActiveAt(t)
	if err != nil {
		return Frame{}, 0, err
	}
	f, err := FrameAt(l.cfg.Resolver, t, l.cfg.Style, l.cfg.Options)
	return f, len(active), err
}

// FrameAt resolves the poses at t and builds their scene.
func FrameAt(r *pose.Resolver, t pose.TimeOffset, style Style, opts BuildOptions) (Frame, error) {
	poses, err := r.Resolve(t)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		T:     t,
		Poses: poses,
		Scene: BuildScene(t, poses, style, opts),
	}, nil
}

// LastTick returns the debug snapshot of the most recent tick.
func (l *Loop) LastTick() TickDebug {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}
