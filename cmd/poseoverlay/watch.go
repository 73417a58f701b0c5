package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/banshee-data/pose.overlay/internal/stream"
)

type WatchCmd struct {
	Addr  string `help:"Server gRPC address. Defaults to grpc_addr from the config, on localhost."`
	Count int    `help:"Stop after this many frames; 0 follows until interrupted."`
	JSON  bool   `help:"Print each frame as JSON."`
}

func (c *WatchCmd) Run(g *Globals) error {
	addr := c.Addr
	if addr == "" {
		addr = g.cfg.GetGRPCAddr()
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(g.ctx, os.Interrupt)
	defer stop()

	frames, err := stream.NewClient(conn).StreamPoses(ctx)
	if err != nil {
		return err
	}
	for n := 0; c.Count == 0 || n < c.Count; n++ {
		msg, err := frames.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		if c.JSON {
			b, err := protojson.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(g.out, string(b))
			continue
		}
		fields := msg.GetFields()
		fmt.Fprintf(g.out, "t=%.3fs poses=%d\n",
			fields["t_s"].GetNumberValue(), len(fields["poses"].GetListValue().GetValues()))
	}
	return nil
}
