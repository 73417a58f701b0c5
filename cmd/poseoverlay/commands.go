package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/overlay"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/report"
	"github.com/banshee-data/pose.overlay/internal/security"
	"github.com/banshee-data/pose.overlay/internal/version"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// createOutput validates an export path and creates the file.
func createOutput(g *Globals, path string) (io.WriteCloser, error) {
	if err := security.ValidateExportPath(path); err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}
	f, err := g.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

type ImportCmd struct {
	Source SourceFlags `embed:""`
	Name   string      `help:"Dataset name. Defaults to the export's base name."`
}

func (c *ImportCmd) Run(g *Globals) error {
	if c.Source.DatasetID != "" {
		return errors.New("import reads --file or --url")
	}
	ds, err := c.Source.load(g, nil)
	if err != nil {
		return err
	}

	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	name := c.Name
	if name == "" {
		name = c.Source.defaultName()
	}
	id, err := store.ImportDataset(ds, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "imported %s (%s): %d tracks, %d keyframes\n", id, name, len(ds.Tracks), ds.KeyframeCount())
	return nil
}

type ListCmd struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (c *ListCmd) Run(g *Globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListDatasets()
	if err != nil {
		return err
	}
	if c.JSON {
		if list == nil {
			list = []db.DatasetSummary{}
		}
		return writeJSON(g.out, list)
	}

	tw := tabwriter.NewWriter(g.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTRACKS\tKEYFRAMES\tCREATED")
	for _, d := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", d.ID, d.Name, d.Tracks, d.Keyframes, d.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

type DeleteCmd struct {
	ID string `arg:"" help:"Dataset ID."`
}

func (c *DeleteCmd) Run(g *Globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteDataset(c.ID); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "deleted %s\n", c.ID)
	return nil
}

type InspectCmd struct {
	Source SourceFlags `embed:""`
	JSON   bool        `help:"Print JSON instead of text."`
}

func (c *InspectCmd) Run(g *Globals) error {
	ds, err := c.Source.load(g, nil)
	if err != nil {
		return err
	}
	s := report.Summarize(ds)
	if c.JSON {
		return writeJSON(g.out, s)
	}
	return report.WriteText(g.out, s)
}

// frameFor loads the source and resolves the frame at the given second.
func frameFor(g *Globals, src *SourceFlags, at float64) (overlay.Frame, error) {
	ds, err := src.load(g, nil)
	if err != nil {
		return overlay.Frame{}, err
	}
	ix, err := pose.IndexOf(ds)
	if err != nil {
		return overlay.Frame{}, err
	}
	style, err := g.style()
	if err != nil {
		return overlay.Frame{}, err
	}
	return overlay.FrameAt(pose.NewResolver(ix, g.resolverConfig()), pose.FromSeconds(at), style, g.buildOptions())
}

type ResolveCmd struct {
	Source SourceFlags `embed:""`
	At     float64     `required:"" help:"Video time in seconds."`
	Scene  bool        `help:"Print the drawable scene along with the poses."`
	Width  int         `help:"Scale the scene to this canvas width in pixels."`
	Height int         `help:"Scale the scene to this canvas height in pixels."`
}

func (c *ResolveCmd) Run(g *Globals) error {
	f, err := frameFor(g, &c.Source, c.At)
	if err != nil {
		return err
	}
	if !c.Scene {
		return writeJSON(g.out, struct {
			T       pose.TimeOffset   `json:"t_ns"`
			Seconds float64           `json:"t_s"`
			Poses   []pose.PoseObject `json:"poses"`
		}{f.T, f.T.Seconds(), f.Poses})
	}
	if c.Width > 0 && c.Height > 0 {
		f.Scene = f.Scene.ToPixels(c.Width, c.Height)
	}
	return writeJSON(g.out, f)
}

type RenderCmd struct {
	Source     SourceFlags `embed:""`
	At         float64     `required:"" help:"Video time in seconds."`
	Out        string      `required:"" short:"o" help:"PNG file to write." type:"path"`
	Width      int         `default:"640" help:"Canvas width in pixels."`
	Height     int         `default:"360" help:"Canvas height in pixels."`
	Background string      `default:"black" help:"Canvas color (CSS form, or transparent)."`
}

func (c *RenderCmd) Run(g *Globals) error {
	bg, err := overlay.ParseColor(c.Background)
	if err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid canvas %dx%d", c.Width, c.Height)
	}
	f, err := frameFor(g, &c.Source, c.At)
	if err != nil {
		return err
	}

	out, err := createOutput(g, c.Out)
	if err != nil {
		return err
	}
	if err := overlay.WritePNG(out, f.Scene, c.Width, c.Height, bg); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "wrote %s (%d poses at %s)\n", c.Out, len(f.Poses), f.T)
	return nil
}

type ChartCmd struct {
	Source   SourceFlags   `embed:""`
	Landmark string        `required:"" help:"Landmark name, e.g. left_wrist."`
	From     *float64      `help:"Start time in seconds. Defaults to the dataset's first segment start."`
	To       *float64      `help:"End time in seconds. Defaults to the dataset's last segment end."`
	Step     time.Duration `help:"Sampling step. Defaults to chart_step from the config."`
	Out      string        `required:"" short:"o" help:"HTML file to write." type:"path"`
}

func (c *ChartCmd) Run(g *Globals) error {
	ds, err := c.Source.load(g, nil)
	if err != nil {
		return err
	}
	ix, err := pose.IndexOf(ds)
	if err != nil {
		return err
	}

	cover := report.Summarize(ds).Coverage
	tc := overlay.TrajectoryChart{
		Resolver: pose.NewResolver(ix, g.resolverConfig()),
		Landmark: c.Landmark,
		From:     cover.Start,
		To:       cover.End,
		Step:     c.Step,
	}
	if c.From != nil {
		tc.From = pose.FromSeconds(*c.From)
	}
	if c.To != nil {
		tc.To = pose.FromSeconds(*c.To)
	}
	if tc.Step == 0 {
		tc.Step = g.cfg.GetChartStep()
	}

	out, err := createOutput(g, c.Out)
	if err != nil {
		return err
	}
	if err := tc.Render(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "wrote %s (%s..%s step %s)\n", c.Out, tc.From, tc.To, tc.Step)
	return nil
}

type MigrateCmd struct {
	Up      MigrateUpCmd      `cmd:"" help:"Apply all pending migrations."`
	Down    MigrateDownCmd    `cmd:"" help:"Roll back the most recent migration."`
	Version MigrateVersionCmd `cmd:"" help:"Print the current schema version."`
	Force   MigrateForceCmd   `cmd:"" help:"Set the schema version without running migrations."`
}

// migrator opens the database without migrating it. The caller closes the
// returned store.
func migrator(g *Globals) (*db.DB, *db.Migrator, error) {
	store, err := db.Open(g.dbPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", g.dbPath(), err)
	}
	mg, err := store.Migrator(db.MigrationsFS())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, mg, nil
}

// migrateStep runs step (which may be nil) and prints the resulting status.
func migrateStep(g *Globals, step func(*db.Migrator) error) error {
	store, mg, err := migrator(g)
	if err != nil {
		return err
	}
	defer store.Close()
	if step != nil {
		if err := step(mg); err != nil {
			return err
		}
	}
	st, err := mg.Status()
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out, st)
	return nil
}

type MigrateUpCmd struct{}

func (c *MigrateUpCmd) Run(g *Globals) error {
	return migrateStep(g, (*db.Migrator).Up)
}

type MigrateDownCmd struct{}

func (c *MigrateDownCmd) Run(g *Globals) error {
	return migrateStep(g, (*db.Migrator).Down)
}

type MigrateVersionCmd struct{}

func (c *MigrateVersionCmd) Run(g *Globals) error {
	return migrateStep(g, nil)
}

type MigrateForceCmd struct {
	Version int `arg:"" help:"Schema version to record."`
}

func (c *MigrateForceCmd) Run(g *Globals) error {
	return migrateStep(g, func(mg *db.Migrator) error { return mg.Force(c.Version) })
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.out, "poseoverlay %s\n", version.String())
	return nil
}
