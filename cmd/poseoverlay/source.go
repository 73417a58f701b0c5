package main

import (
	"errors"
	"path"
	"strings"

	"github.com/banshee-data/pose.overlay/internal/db"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/pose/annotations"
)

var errNoSource = errors.New("one of --file, --url or --dataset-id is required")

// SourceFlags select where a command reads its dataset from.
type SourceFlags struct {
	File        string `help:"Annotation export (.json) on disk." xor:"source" type:"path"`
	URL         string `name:"url" help:"Annotation export to fetch over HTTP." xor:"source"`
	DatasetID   string `name:"dataset-id" help:"Dataset stored by the import command." xor:"source"`
	ResultIndex int    `name:"result-index" help:"annotationResults entry to read from an export." default:"0"`
}

func (s *SourceFlags) set() bool {
	return s.File != "" || s.URL != "" || s.DatasetID != ""
}

// describe names the source for logs and default dataset names.
func (s *SourceFlags) describe() string {
	switch {
	case s.File != "":
		return s.File
	case s.URL != "":
		return s.URL
	default:
		return "dataset " + s.DatasetID
	}
}

// load reads the selected dataset. Stored datasets come from store when it is
// non-nil, otherwise the database is opened for the duration of the call.
func (s *SourceFlags) load(g *Globals, store *db.DB) (*pose.Dataset, error) {
	opts := g.decodeOptions()
	opts.ResultIndex = s.ResultIndex

	var (
		ds     *pose.Dataset
		report annotations.DecodeReport
		err    error
	)
	switch {
	case s.File != "":
		src := annotations.FileSource{FS: g.fs, DataDir: g.cfg.GetDataDir(), Options: opts}
		ds, report, err = src.Load(s.File)
	case s.URL != "":
		src := annotations.HTTPSource{Client: g.client, Options: opts}
		ds, report, err = src.Fetch(g.ctx, s.URL)
	case s.DatasetID != "":
		if store == nil {
			if store, err = g.openStore(); err != nil {
				return nil, err
			}
			defer store.Close()
		}
		return store.LoadDataset(s.DatasetID)
	default:
		return nil, errNoSource
	}
	if err != nil {
		return nil, err
	}

	monitoring.Logf("[loader] %s: %d tracks, %d keyframes (skipped %d samples, %d duplicates, %d tracks)",
		s.describe(), report.Tracks, report.Keyframes, report.SkippedSamples, report.DuplicateSamples, report.SkippedTracks)
	return ds, nil
}

// defaultName derives a dataset name from the file or URL base name.
func (s *SourceFlags) defaultName() string {
	p := s.File
	if p == "" {
		p = s.URL
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	name := strings.TrimSuffix(path.Base(p), ".json")
	if name == "" || name == "." || name == "/" {
		return "imported"
	}
	return name
}
