package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource reads case bundles from <Dir>/<case>.json, .yaml or .yml.
type FileSource struct {
	Dir string
}

var bundleExtensions = []string{".json", ".yaml", ".yml"}

// Load implements Source.
func (s FileSource) Load(ctx context.Context, caseID string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ext := range bundleExtensions {
		path := filepath.Join(s.Dir, caseID+ext)
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		format, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		b, err := Decode(bytes.NewReader(raw), format)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if b.Case == "" {
			b.Case = caseID
		}
		return NewStore(b)
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrCaseNotFound, caseID, s.Dir)
}

// Save implements Saver by writing <Dir>/<case>.json.
func (s FileSource) Save(ctx context.Context, b Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Case == "" {
		return fmt.Errorf("dataset: bundle has no case identifier")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, b, FormatJSON); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, b.Case+".json"), buf.Bytes(), 0o644)
}

// List returns the case identifiers with a bundle file in Dir. A missing
// directory holds no cases.
func (s FileSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Dir, err)
	}
	seen := make(map[string]struct{})
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if _, err := FormatFromPath(e.Name()); err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
