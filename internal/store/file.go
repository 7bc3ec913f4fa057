// Package store implements the descriptor store backends: a directory of JSON
// files on the local machine and a shared relational table.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

const fileExt = ".json"

// FileStore keeps one <name>.json file per descriptor in a directory. Files
// may be edited by hand between calls.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tool directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

// List reads every descriptor file. A descriptor is named after its file.
// Files that cannot be decoded are logged and skipped; schema problems are
// left for the compiler to report.
func (s *FileStore) List(ctx context.Context) ([]*tool.Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read tool directory: %w", err)
	}

	var out []*tool.Descriptor
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var d tool.Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable tool file")
			continue
		}
		// The file name is the identity Upsert and Delete address, so it
		// wins over a name field edited by hand.
		fileName := strings.TrimSuffix(e.Name(), fileExt)
		if d.Name != "" && d.Name != fileName {
			log.Warn().Str("path", path).Str("name", d.Name).Msg("tool file name differs from descriptor name; using file name")
		}
		d.Name = fileName
		out = append(out, &d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert writes d to <dir>/<name>.json through a temporary file and rename.
func (s *FileStore) Upsert(ctx context.Context, d *tool.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+d.Name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := os.Rename(tmpName, s.path(d.Name)); err != nil {
		return fmt.Errorf("replace descriptor file: %w", err)
	}
	return nil
}

// Delete removes the named descriptor file.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if !tool.IsValidName(name) {
		return fmt.Errorf("%w: %s", tool.ErrNotFound, name)
	}
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", tool.ErrNotFound, name)
		}
		return fmt.Errorf("delete descriptor file: %w", err)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}
