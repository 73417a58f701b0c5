package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/timeutil"
)

type recordingPresenter struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (rp *recordingPresenter) Present(_ context.Context, f Frame) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.frames = append(rp.frames, f)
	return rp.err
}

func (rp *recordingPresenter) count() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.frames)
}

func TestLoopTick(t *testing.T) {
	t.Parallel()

	clock := &playback.ManualClock{}
	clock.Set(pose.FromSeconds(0.5))
	rp := &recordingPresenter{}
	loop := NewLoop(LoopConfig{
		Resolver:  newChartResolver(t),
		Position:  clock,
		Presenter: rp,
		Style:     DefaultStyle(),
	})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, loop.Tick(context.Background(), now))

	require.Equal(t, 1, rp.count())
	f := rp.frames[0]
	assert.Equal(t, pose.FromSeconds(0.5), f.T)
	assert.Len(t, f.Poses, 2)
	assert.Equal(t, pose.FromSeconds(0.5), f.Scene.T)

	dbg := loop.LastTick()
	assert.Equal(t, TickDebug{At: now, T: pose.FromSeconds(0.5), ActiveTracks: 2, Poses: 2, Ticks: 1}, dbg)
}

func TestLoopTickNotReady(t *testing.T) {
	t.Parallel()

	rp := &recordingPresenter{}
	loop := NewLoop(LoopConfig{
		Resolver:  pose.NewResolver(pose.NewIndex(), pose.DefaultResolverConfig()),
		Position:  &playback.ManualClock{},
		Presenter: rp,
	})

	err := loop.Tick(context.Background(), time.Time{})
	assert.ErrorIs(t, err, pose.ErrNotReady)
	assert.Zero(t, rp.count(), "nothing presented before the dataset is ready")
	assert.Equal(t, pose.ErrNotReady.Error(), loop.LastTick().Err)
}

func TestLoopTickPresenterError(t *testing.T) {
	t.Parallel()

	rp := &recordingPresenter{err: errors.New("canvas gone")}
	loop := NewLoop(LoopConfig{Resolver: newChartResolver(t), Position: &playback.ManualClock{}, Presenter: rp})

	err := loop.Tick(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "canvas gone")
	assert.Equal(t, "canvas gone", loop.LastTick().Err)
	assert.Equal(t, 2, loop.LastTick().Poses)
}

func TestLoopRun(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	mock := timeutil.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	wall := playback.NewWallClock(mock)
	wall.Play()

	var presented sync.WaitGroup
	presented.Add(1)
	var once sync.Once
	loop := NewLoop(LoopConfig{
		Resolver: newChartResolver(t),
		Position: wall,
		Presenter: PresenterFunc(func(context.Context, Frame) error {
			once.Do(presented.Done)
			return nil
		}),
		Interval: 10 * time.Millisecond,
		Clock:    mock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Advance(10 * time.Millisecond)
		return loop.LastTick().Ticks >= 3
	}, 2*time.Second, time.Millisecond)
	presented.Wait()

	dbg := loop.LastTick()
	assert.Greater(t, int64(dbg.T), int64(0), "position follows the wall clock")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestNewLoopDefaults(t *testing.T) {
	t.Parallel()

	loop := NewLoop(LoopConfig{})
	assert.Equal(t, 33*time.Millisecond, loop.cfg.Interval)
	assert.IsType(t, timeutil.RealClock{}, loop.cfg.Clock)
}
