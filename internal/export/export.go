// Package export writes run results as JSON documents, one directory per
// run.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/signalsfoundry/manet-simulator/model"
)

// Document names inside a run directory.
const (
	WholeDocument = "whole"
	FieldDocument = "field"
	NodesDocument = "nodes"
)

const (
	jsonExt = ".json"
	zstdExt = ".json.zst"
)

// ErrSkipped is returned by Save when a disconnected run is not exported.
var ErrSkipped = errors.New("run skipped: connectivity lost")

// Options controls how results are written.
type Options struct {
	// Compress writes zstd-compressed documents.
	Compress bool
	// ConnectedOnly skips runs that lost connectivity.
	ConnectedOnly bool
	// Now stamps the directory name; defaults to time.Now.
	Now func() time.Time
}

// DirName returns the directory name of a run: algorithm, node count and a
// hex microsecond timestamp.
func DirName(algorithm string, nodes int, at time.Time) string {
	return fmt.Sprintf("%s%dnodes%#x", algorithm, nodes, at.UnixMicro())
}

// Save writes res under root in a fresh run directory and returns its path.
func Save(root string, res model.RunResult, opts Options) (string, error) {
	if opts.ConnectedOnly && !res.Whole.Connectivity {
		return "", ErrSkipped
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating result root: %w", err)
	}
	dir, err := claimDir(root, res.Whole.Algorithm, res.Whole.Nodes, now())
	if err != nil {
		return "", err
	}

	docs := []struct {
		name string
		v    any
	}{
		{WholeDocument, res.Whole},
		{FieldDocument, res.Field},
		{NodesDocument, res.Nodes},
	}
	for _, d := range docs {
		if err := writeDocument(dir, d.name, d.v, opts.Compress); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// claimDir creates a run directory that no other run owns, moving the stamp
// forward a microsecond at a time while names collide.
func claimDir(root, algorithm string, nodes int, at time.Time) (string, error) {
	for {
		dir := filepath.Join(root, DirName(algorithm, nodes, at))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
		at = at.Add(time.Microsecond)
	}
}

func writeDocument(dir, name string, v any, compress bool) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if !compress {
		return os.WriteFile(filepath.Join(dir, name+jsonExt), data, 0o644)
	}

	f, err := os.Create(filepath.Join(dir, name+zstdExt))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()
	encoder, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finishing %s: %w", name, err)
	}
	return f.Close()
}

// ReadSummary loads the whole-run document of a run directory, compressed
// or not.
func ReadSummary(dir string) (model.RunSummary, error) {
	var sum model.RunSummary
	data, err := readDocument(dir, WholeDocument)
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, fmt.Errorf("decoding %s: %w", WholeDocument, err)
	}
	return sum, nil
}

func readDocument(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+jsonExt))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, name+zstdExt))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()
	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	data, err = io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}
	return data, nil
}

// IsRunDir reports whether dir holds a whole-run document.
func IsRunDir(dir string) bool {
	for _, ext := range []string{jsonExt, zstdExt} {
		if _, err := os.Stat(filepath.Join(dir, WholeDocument+ext)); err == nil {
			return true
		}
	}
	return false
}
