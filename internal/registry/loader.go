package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modelbridge/internal/common/fsutil"
	"modelbridge/pkg/types"
)

// GGUFScanner discovers *.gguf model files in a directory so they can be
// imported into the engine.
type GGUFScanner struct{}

// NewGGUFScanner returns a scanner for *.gguf files.
func NewGGUFScanner() GGUFScanner { return GGUFScanner{} }

// Scan lists *.gguf files directly under dir (no recursion), in name order.
// ID is the filename without extension; Path is absolute; metadata carries
// the file size.
func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.AbsPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".gguf") {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		models = append(models, types.Model{
			ID:         strings.TrimSuffix(name, ext),
			Name:       name,
			Path:       filepath.Join(abs, name),
			Parameters: map[string]any{},
			Settings:   map[string]any{},
			Metadata:   map[string]any{"tags": []any{"local"}, "size": float64(size)},
		})
	}
	return models, nil
}

// LoadDir scans dir with a GGUFScanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}
