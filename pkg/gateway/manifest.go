package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest lists the app shell paths warmed into the static cache at
// startup. The generation, when set, is the content hash of the shell build
// and overrides the configured cache generation so a new build invalidates
// the old shell automatically.
type Manifest struct {
	Generation string   `yaml:"generation"`
	URLs       []string `yaml:"urls"`
}

// LoadManifest reads a precache manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read precache manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse precache manifest: %w", err)
	}

	return &m, nil
}
