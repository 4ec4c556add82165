package site

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SelectorOverrides is the content of a <category>.yml file.
type SelectorOverrides struct {
	Containers []string `yaml:"containers"`
}

// SelectorCache holds container selectors loaded from a directory of YAML
// files. They take precedence over the built-in selectors of a category.
type SelectorCache struct {
	dir   string
	cache map[Category]*SelectorOverrides
	mu    sync.RWMutex
}

func NewSelectorCache(dir string) *SelectorCache {
	return &SelectorCache{
		dir:   dir,
		cache: make(map[Category]*SelectorOverrides),
	}
}

func (sc *SelectorCache) Run() error {
	if sc.dir == "" {
		return nil
	}
	if _, err := os.Stat(sc.dir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.dir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		category, err := ParseCategory(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		overrides, err := sc.LoadOverrides(category)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Selector overrides loaded", "category", category, "containers", len(overrides.Containers))
	}

	return nil
}

func (sc *SelectorCache) LoadOverrides(category Category) (*SelectorOverrides, error) {
	file := filepath.Join(sc.dir, string(category)+".yml")

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var overrides SelectorOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	containers := overrides.Containers[:0]
	for _, selector := range overrides.Containers {
		if selector = strings.TrimSpace(selector); selector != "" {
			containers = append(containers, selector)
		}
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("invalid overrides %s: at least one container selector is required", file)
	}
	overrides.Containers = containers

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[category] = &overrides

	return &overrides, nil
}

// Containers returns the override selectors for category, or nil.
func (sc *SelectorCache) Containers(category Category) []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if overrides, ok := sc.cache[category]; ok {
		return overrides.Containers
	}
	return nil
}

func (sc *SelectorCache) Count() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}
