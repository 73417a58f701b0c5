// Command poseoverlay serves and inspects pose annotations for video
// overlays.
//
// A typical session imports an annotation export once and serves it:
//
//	poseoverlay import --file squat.json --name squat
//	poseoverlay serve --dataset-id <id>
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/banshee-data/pose.overlay/internal/config"
	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/fsutil"
	"github.com/banshee-data/pose.overlay/internal/httputil"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/pose/annotations"
)

// CLI is the command tree.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Serve the overlay over HTTP, websocket and gRPC."`
	Import  ImportCmd  `cmd:"" help:"Decode an annotation export and store it in the database."`
	List    ListCmd    `cmd:"" help:"List stored datasets."`
	Delete  DeleteCmd  `cmd:"" help:"Delete a stored dataset."`
	Inspect InspectCmd `cmd:"" help:"Print summary statistics for a dataset."`
	Resolve ResolveCmd `cmd:"" help:"Print the poses visible at a video time."`
	Render  RenderCmd  `cmd:"" help:"Draw the overlay at a video time to a PNG."`
	Chart   ChartCmd   `cmd:"" help:"Plot one landmark's trajectory to an HTML chart."`
	Watch   WatchCmd   `cmd:"" help:"Follow a running server's pose stream over gRPC."`
	Migrate MigrateCmd `cmd:"" help:"Manage the database schema."`
	Version VersionCmd `cmd:"" help:"Print build information."`
}

// Globals are flags shared by every command, plus the state built from them
// before a command runs.
type Globals struct {
	Config string `help:"Overlay config JSON. Defaults to $POSE_OVERLAY_CONFIG, then built-in defaults." type:"path"`
	DB     string `name:"db" help:"SQLite database path. Overrides db_path from the config."`
	Style  string `help:"JSON style patch applied over the configured style." type:"existingfile"`
	Quiet  bool   `short:"q" help:"Silence diagnostic logging."`

	ctx    context.Context
	out    io.Writer
	cfg    *config.OverlayConfig
	fs     fsutil.FileSystem
	client httputil.HTTPClient
}

func (g *Globals) setup(ctx context.Context, out io.Writer) error {
	g.ctx, g.out = ctx, out
	if g.fs == nil {
		g.fs = fsutil.OSFileSystem{}
	}
	if g.Quiet {
		monitoring.SetLogger(nil)
	}

	var err error
	if g.Config != "" {
		g.cfg, err = config.LoadOverlayConfig(g.Config)
	} else {
		g.cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func (g *Globals) dbPath() string {
	if g.DB != "" {
		return g.DB
	}
	return g.cfg.GetDBPath()
}

// openStore opens the database and applies pending migrations.
func (g *Globals) openStore() (*db.DB, error) {
	store, err := db.NewDB(g.dbPath())
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", g.dbPath(), err)
	}
	return store, nil
}

func (g *Globals) style() (overlay.Style, error) {
	s := overlay.StyleFromConfig(g.cfg)
	if g.Style == "" {
		return s, nil
	}
	data, err := g.fs.ReadFile(g.Style)
	if err != nil {
		return s, fmt.Errorf("read style: %w", err)
	}
	return overlay.MergeStyleJSON(s, bytes.NewReader(data))
}

func (g *Globals) buildOptions() overlay.BuildOptions {
	return overlay.BuildOptions{DrawBoundingBoxes: g.cfg.GetDrawBoundingBoxes()}
}

func (g *Globals) resolverConfig() pose.ResolverConfig {
	return pose.ResolverConfig{ClampAlpha: g.cfg.GetClampAlpha()}
}

func (g *Globals) decodeOptions() annotations.Options {
	return annotations.Options{FirstTrackOnly: g.cfg.GetFirstTrackOnly()}
}

func newParser(cli *CLI, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("poseoverlay"),
		kong.Description("Pose landmark overlays for annotated video."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
}

// run parses args and executes the selected command. Globals may carry
// pre-set test seams (filesystem, HTTP client).
func run(ctx context.Context, cli *CLI, args []string, stdout, stderr io.Writer) error {
	parser, err := newParser(cli, stdout, stderr)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if err := cli.Globals.setup(ctx, stdout); err != nil {
		return err
	}
	return kctx.Run(&cli.Globals)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment variables from .env")
	}

	var cli CLI
	if err := run(context.Background(), &cli, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "poseoverlay: %v\n", err)
		os.Exit(1)
	}
}
