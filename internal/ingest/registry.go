package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Strategy is how a collector reaches its source. It only labels the
// registry here; collectors live outside this repo.
type Strategy string

const (
	StrategyAPI  Strategy = "api"  // Quest platform APIs (Zealy, Galxe, Layer3)
	StrategyRSS  Strategy = "rss"  // RSS/Atom feeds
	StrategyHTML Strategy = "html" // Scraped pages
)

// Registry holds the per-source processing defaults.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`

	index map[string]int
}

// SourceConfig describes one collector's output.
type SourceConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Aliases           []string `yaml:"aliases,omitempty"`
	Strategy          Strategy `yaml:"strategy"`
	DefaultTimeEstMin float64  `yaml:"default_time_est_min,omitempty"`
	Description       string   `yaml:"description,omitempty"`
}

// LoadRegistry reads path, or the embedded sources.yaml when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}

	// Expand environment variables within the YAML content
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	reg.buildIndex()
	return &reg, nil
}

// NewRegistry builds a registry from in-memory configs.
func NewRegistry(sources ...SourceConfig) *Registry {
	reg := &Registry{Sources: sources}
	reg.buildIndex()
	return reg
}

func (r *Registry) buildIndex() {
	r.index = make(map[string]int, len(r.Sources)*2)
	for i, src := range r.Sources {
		for _, key := range append([]string{src.ID, src.Name}, src.Aliases...) {
			if k := sourceKey(key); k != "" {
				if _, taken := r.index[k]; !taken {
					r.index[k] = i
				}
			}
		}
	}
}

// Lookup finds a source by id, name or alias, ignoring case.
func (r *Registry) Lookup(source string) (SourceConfig, bool) {
	if r == nil {
		return SourceConfig{}, false
	}
	i, ok := r.index[sourceKey(source)]
	if !ok {
		return SourceConfig{}, false
	}
	return r.Sources[i], true
}

// DefaultTimeEstimate returns the source's configured effort estimate, or
// fallback when the source is unknown or has none.
func (r *Registry) DefaultTimeEstimate(source string, fallback float64) float64 {
	if src, ok := r.Lookup(source); ok && src.DefaultTimeEstMin > 0 {
		return src.DefaultTimeEstMin
	}
	return fallback
}
