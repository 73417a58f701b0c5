package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/pose.overlay/internal/api"
	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/report"
	"github.com/banshee-data/pose.overlay/internal/stream"
	"github.com/banshee-data/pose.overlay/internal/version"
)

type ServeCmd struct {
	Source SourceFlags `embed:""`

	Listen   string `help:"HTTP listen address. Defaults to listen_addr from the config."`
	GRPC     string `name:"grpc" help:"gRPC listen address. Defaults to grpc_addr from the config."`
	Follow   string `enum:"clock,browser" default:"clock" help:"What drives the overlay loop: the server playback clock, or the time websocket clients report (${enum})."`
	Autoplay bool   `help:"Start the playback clock once the dataset is ready."`

	FrameWidth  int `default:"640" help:"Width of frames drawn by the overlay loop."`
	FrameHeight int `default:"360" help:"Height of frames drawn by the overlay loop."`
}

// services is everything serve runs, wired but not yet started.
type services struct {
	index     *pose.Index
	player    *playback.WallClock
	reported  *playback.ManualClock
	presenter *overlay.PlotPresenter
	loop      *overlay.Loop
	api       *api.Server
	grpc      *grpc.Server
	stream    *stream.Server
	handler   http.Handler
}

func (c *ServeCmd) build(g *Globals, store *db.DB) (*services, error) {
	style, err := g.style()
	if err != nil {
		return nil, err
	}

	s := &services{
		index:     pose.NewIndex(),
		player:    playback.NewWallClock(nil),
		reported:  &playback.ManualClock{},
		presenter: overlay.NewPlotPresenter(c.FrameWidth, c.FrameHeight),
	}
	resolver := pose.NewResolver(s.index, g.resolverConfig())

	var loopClock playback.Clock = s.player
	if c.Follow == "browser" {
		loopClock = s.reported
	}
	s.loop = overlay.NewLoop(overlay.LoopConfig{
		Resolver:  resolver,
		Position:  loopClock,
		Presenter: s.presenter,
		Style:     style,
		Options:   g.buildOptions(),
		Interval:  g.cfg.GetTickInterval(),
	})

	s.api = api.NewServer(api.Config{
		Resolver:  resolver,
		Player:    s.player,
		Position:  loopClock,
		Reported:  s.reported,
		Style:     style,
		Options:   g.buildOptions(),
		Store:     store,
		Loop:      s.loop,
		ChartStep: g.cfg.GetChartStep(),
	})

	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(stream.LoggingInterceptor))
	s.stream = stream.NewServer(stream.Config{
		Resolver: resolver,
		Position: loopClock,
		Player:   s.player,
		Style:    style,
		Options:  g.buildOptions(),
		Interval: g.cfg.GetTickInterval(),
	})
	stream.RegisterService(s.grpc, s.stream)

	mux := s.api.ServeMux()
	debug, err := store.AttachAdminRoutes(mux)
	if err != nil {
		return nil, err
	}
	debug.Handle("tick", "Most recent overlay loop tick (JSON)", s.api.TickHandler())
	debug.Handle("overlay.png", "Most recent frame drawn by the overlay loop", http.HandlerFunc(s.serveLastFrame))
	s.handler = api.LoggingMiddleware(mux)
	return s, nil
}

func (s *services) serveLastFrame(w http.ResponseWriter, r *http.Request) {
	png, t := s.presenter.Last()
	if png == nil {
		http.Error(w, "no frame drawn yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Playback-Offset", pose.TimeOffset(t).String())
	w.Write(png)
}

// publish loads the dataset and makes it visible to every reader.
func (c *ServeCmd) publish(g *Globals, store *db.DB, s *services) error {
	start := time.Now()
	ds, err := c.Source.load(g, store)
	if err != nil {
		return err
	}
	if err := s.index.Publish(ds); err != nil {
		return err
	}

	cover := report.Summarize(ds).Coverage
	s.player.SetEnd(cover.End)
	if c.Autoplay {
		s.player.Play()
	}
	monitoring.Logf("[loader] %s ready in %s: %d tracks covering %s..%s",
		c.Source.describe(), time.Since(start).Round(time.Millisecond), len(ds.Tracks), cover.Start, cover.End)
	return nil
}

// listenAddr prefers the flag over the configured value.
func listenAddr(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func (c *ServeCmd) Run(g *Globals) error {
	if !c.Source.set() {
		return errNoSource
	}

	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := c.build(g, store)
	if err != nil {
		return err
	}

	httpLn, err := net.Listen("tcp", listenAddr(c.Listen, g.cfg.GetListenAddr()))
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLn, err := net.Listen("tcp", listenAddr(c.GRPC, g.cfg.GetGRPCAddr()))
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}

	monitoring.Logf("poseoverlay %s starting", version.String())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(g.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g.ctx = ctx

	// Annotations load in the background; every reader answers "not ready"
	// until Publish.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.publish(g, store, s); err != nil {
			monitoring.Logf("[loader] failed to load %s: %v", c.Source.describe(), err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("[overlay] loop error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				monitoring.Logf("[gRPC] serve error: %v", err)
			}
		}()
		monitoring.Logf("[gRPC] listening on %s", grpcLn.Addr())
		<-ctx.Done()
		s.stopGRPC(1 * time.Second)
		monitoring.Logf("[gRPC] server stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				monitoring.Logf("[api] serve error: %v", err)
			}
		}()
		monitoring.Logf("[api] listening on http://%s", displayAddr(httpLn.Addr()))

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("[api] shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("[api] force close error: %v", err)
			}
		}
		monitoring.Logf("[api] server stopped")
	}()

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
	return nil
}

// stopGRPC ends open pose streams, then drains unary calls for up to
// timeout before forcing the server closed.
func (s *services) stopGRPC(timeout time.Duration) {
	s.stream.Stop()
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		monitoring.Logf("[gRPC] graceful stop timed out, forcing")
		s.grpc.Stop()
		<-stopped
	}
}

func displayAddr(a net.Addr) string {
	s := a.String()
	if strings.HasPrefix(s, "[::]:") {
		return "localhost" + strings.TrimPrefix(s, "[::]")
	}
	return s
}
