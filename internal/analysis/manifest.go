package analysis

import (
	"context"
	"fmt"

	"codeguard/internal/aggregate"

	"gopkg.in/yaml.v3"
)

// ManifestAnalyzer renders the batch as YAML for tools that consume the
// uploaded assets themselves.
type ManifestAnalyzer struct{}

type manifest struct {
	Count   int               `yaml:"count"`
	Entries []aggregate.Entry `yaml:"entries"`
}

// Analyze returns the manifest document
func (ManifestAnalyzer) Analyze(_ context.Context, batch aggregate.Batch) (string, error) {
	if batch.Empty() {
		return "", ErrEmptyBatch
	}

	out, err := yaml.Marshal(manifest{Count: batch.Len(), Entries: batch.Entries})
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(out), nil
}
