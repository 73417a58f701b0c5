// Package stream serves resolved poses over gRPC, either on request for a
// given instant or as a stream that follows the playback clock.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/playback"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/timeutil"
)

// Ensure Server implements the gRPC interface.
var _ PoseServiceServer = (*Server)(nil)

// Config wires a Server.
type Config struct {
	Resolver *pose.Resolver
	// Position is read by StreamPoses. Defaults to Player when nil.
	Position playback.Clock
	// Player handles Seek, Play, Pause and SetRate; without one they
	// return Unimplemented.
	Player   playback.Controller
	Style    overlay.Style
	Options  overlay.BuildOptions
	// Interval between position polls in StreamPoses; defaults to 33ms.
	Interval time.Duration
	Clock    timeutil.Clock
}

// Server implements PoseServiceServer.
type Server struct {
	cfg Config

	stopOnce sync.Once
	done     chan struct{}
}

// NewServer creates a new gRPC server.
func NewServer(cfg Config) *Server {
	if cfg.Position == nil && cfg.Player != nil {
		cfg.Position = cfg.Player
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 33 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Server{cfg: cfg, done: make(chan struct{})}
}

// Stop ends every open StreamPoses call with codes.Unavailable. Call it
// before grpc.Server.GracefulStop, which otherwise waits for streams that
// only end when their clients go away.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Resolve returns the frame at the requested offset.
func (s *Server) Resolve(ctx context.Context, req *durationpb.Duration) (*structpb.Struct, error) {
	if err := req.CheckValid(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid offset: %v", err)
	}
	f, err := overlay.FrameAt(s.cfg.Resolver, pose.FromDuration(req.AsDuration()), s.cfg.Style, s.cfg.Options)
	if err != nil {
		return nil, toStatus(err)
	}
	return frameStruct(f)
}

// StreamPoses sends a frame whenever the playback position changes, and
// once on the first tick after the dataset becomes ready.
func (s *Server) StreamPoses(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.cfg.Position == nil {
		return status.Error(codes.FailedPrecondition, "no playback clock configured")
	}
	monitoring.Logf("[gRPC] StreamPoses started (interval=%s)", s.cfg.Interval)

	ctx := stream.Context()
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var last pose.TimeOffset
	sent := false
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[gRPC] StreamPoses cancelled")
			return ctx.Err()
		case <-s.done:
			return status.Error(codes.Unavailable, "server shutting down")
		case <-ticker.C():
			t := s.cfg.Position.Position()
			if sent && t == last {
				continue
			}
			f, err := overlay.FrameAt(s.cfg.Resolver, t, s.cfg.Style, s.cfg.Options)
			if errors.Is(err, pose.ErrNotReady) {
				continue
			}
			if err != nil {
				return toStatus(err)
			}
			msg, err := frameStruct(f)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				monitoring.Logf("[gRPC] Send error: %v", err)
				return err
			}
			last, sent = t, true
		}
	}
}

// Seek moves the playback position.
func (s *Server) Seek(ctx context.Context, req *durationpb.Duration) (*structpb.Struct, error) {
	if s.cfg.Player == nil {
		return nil, status.Error(codes.Unimplemented, "playback control not available")
	}
	if err := req.CheckValid(); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid offset: %v", err)
	}
	st, err := s.cfg.Player.Seek(pose.FromDuration(req.AsDuration()))
	if err != nil {
		return nil, toStatus(err)
	}
	return statusStruct(st)
}

// Play resumes playback.
func (s *Server) Play(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.cfg.Player == nil {
		return nil, status.Error(codes.Unimplemented, "playback control not available")
	}
	return statusStruct(s.cfg.Player.Play())
}

// Pause freezes playback.
func (s *Server) Pause(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.cfg.Player == nil {
		return nil, status.Error(codes.Unimplemented, "playback control not available")
	}
	return statusStruct(s.cfg.Player.Pause())
}

// SetRate sets the playback rate.
func (s *Server) SetRate(ctx context.Context, req *wrapperspb.DoubleValue) (*structpb.Struct, error) {
	if s.cfg.Player == nil {
		return nil, status.Error(codes.Unimplemented, "playback control not available")
	}
	st, err := s.cfg.Player.SetRate(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return statusStruct(st)
}

// LoggingInterceptor logs each unary call with its duration and status code.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	monitoring.Logf("[gRPC] %s %s %.3fms", info.FullMethod, status.Code(err), float64(time.Since(start).Nanoseconds())/1e6)
	return resp, err
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, pose.ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, playback.ErrNegativeSeek), errors.Is(err, playback.ErrInvalidRate):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func frameStruct(f overlay.Frame) (*structpb.Struct, error) {
	m, err := toMap(f)
	if err != nil {
		return nil, err
	}
	m["t_s"] = f.T.Seconds()
	return toStruct(m)
}

func statusStruct(st playback.Status) (*structpb.Struct, error) {
	m, err := toMap(st)
	if err != nil {
		return nil, err
	}
	return toStruct(m)
}

// toMap goes through JSON so Struct fields match the HTTP API bodies.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return m, nil
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("build struct: %v", err))
	}
	return st, nil
}
