package annotations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/pose.overlay/internal/fsutil"
	"github.com/banshee-data/pose.overlay/internal/httputil"
	"github.com/banshee-data/pose.overlay/internal/monitoring"
	"github.com/banshee-data/pose.overlay/internal/pose"
	"github.com/banshee-data/pose.overlay/internal/security"
)

// MaxDocumentSize bounds annotation documents read from disk or the network.
const MaxDocumentSize = 256 * 1024 * 1024

// FileSource loads annotation documents from a filesystem.
type FileSource struct {
	FS fsutil.FileSystem

	// DataDir, when set, confines loads to paths inside it.
	DataDir string

	Options Options
}

// Load reads and decodes the document at path.
func (s *FileSource) Load(path string) (*pose.Dataset, DecodeReport, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, DecodeReport{}, fmt.Errorf("annotation file must have .json extension, got %q", ext)
	}
	if s.DataDir != "" {
		if err := security.ValidatePathWithinDirectory(cleanPath, s.DataDir); err != nil {
			return nil, DecodeReport{}, err
		}
	}

	fsys := s.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, DecodeReport{}, fmt.Errorf("failed to stat annotation file: %w", err)
	}
	if info.Size() > MaxDocumentSize {
		return nil, DecodeReport{}, fmt.Errorf("annotation file too large: %d bytes (max %d)", info.Size(), MaxDocumentSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, DecodeReport{}, fmt.Errorf("failed to read annotation file: %w", err)
	}
	monitoring.Logf("[loader] read %s (%d bytes)", cleanPath, len(data))
	return Decode(bytes.NewReader(data), s.Options)
}

// HTTPSource fetches annotation documents over HTTP.
type HTTPSource struct {
	Client  httputil.HTTPClient
	Options Options
}

// Fetch downloads and decodes the document at url.
func (s *HTTPSource) Fetch(ctx context.Context, url string) (*pose.Dataset, DecodeReport, error) {
	client := s.Client
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, DecodeReport{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, DecodeReport{}, fmt.Errorf("failed to fetch annotations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, DecodeReport{}, fmt.Errorf("failed to fetch annotations: %s returned status %d", url, resp.StatusCode)
	}
	monitoring.Logf("[loader] fetched %s", url)
	return Decode(io.LimitReader(resp.Body, MaxDocumentSize), s.Options)
}
