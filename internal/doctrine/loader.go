package doctrine

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/normanking/divan/internal/logging"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DOCTRINE LOADER
// The default set ships embedded; a doctrine directory can override
// individual domains without touching the binary.
// ═══════════════════════════════════════════════════════════════════════════════

//go:embed doctrines.yaml
var doctrinesYAML []byte

type doctrineFile struct {
	Doctrines []*Doctrine `yaml:"doctrines"`
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
	defaultErr      error
)

// Load parses the embedded doctrine set. Parsed once and cached; every
// caller shares the same immutable registry.
func Load() (*Registry, error) {
	defaultOnce.Do(func() {
		doctrines, err := parseDoctrines(doctrinesYAML)
		if err != nil {
			defaultErr = fmt.Errorf("parse embedded doctrines: %w", err)
			return
		}
		defaultRegistry = newRegistry(doctrines)
	})
	return defaultRegistry, defaultErr
}

// LoadDir returns the embedded defaults with per-domain overrides merged
// from *.yaml files in dir, applied in filename order. A missing directory
// yields the defaults unchanged; a malformed file is an error.
func LoadDir(dir string) (*Registry, error) {
	base, err := Load()
	if err != nil {
		return nil, err
	}

	// Fresh registry so the cached default stays pristine.
	merged := newRegistry(base.All())

	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return merged, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read doctrine dir: %w", err)
	}

	log := logging.Global().WithComponent("doctrine")
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read doctrine override %s: %w", name, err)
		}

		doctrines, err := parseDoctrines(data)
		if err != nil {
			return nil, fmt.Errorf("parse doctrine override %s: %w", name, err)
		}

		for _, d := range doctrines {
			merged.put(d)
		}
		log.Info("doctrine overrides applied from %s (%d doctrines)", name, len(doctrines))
	}

	return merged, nil
}

func parseDoctrines(data []byte) ([]*Doctrine, error) {
	var file doctrineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Doctrines) == 0 {
		return nil, fmt.Errorf("no doctrines defined")
	}
	if err := validate(file.Doctrines); err != nil {
		return nil, err
	}
	return file.Doctrines, nil
}
