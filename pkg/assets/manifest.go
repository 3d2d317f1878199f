package assets

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestVersion is bumped when the manifest layout changes.
const ManifestVersion = 1

// Manifest is the on-disk form of a Cache, written by the build stage so a
// separately launched post-build stage of the same build can reuse it.
type Manifest struct {
	Version      int      `yaml:"version"`
	BuildID      string   `yaml:"build_id,omitempty"`
	DeliveryType string   `yaml:"delivery_type"`
	Folder       string   `yaml:"folder,omitempty"`
	Images       []Record `yaml:"images"`
}

// Snapshot captures the cache contents into a manifest.
func (c *Cache) Snapshot(buildID, deliveryType, folder string) Manifest {
	return Manifest{
		Version:      ManifestVersion,
		BuildID:      buildID,
		DeliveryType: deliveryType,
		Folder:       folder,
		Images:       c.Records(Images),
	}
}

// Restore loads manifest records into the cache.
func (c *Cache) Restore(m Manifest) error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported asset manifest version %d", m.Version)
	}
	if err := c.Set(Images, m.Images); err != nil {
		return fmt.Errorf("restore %s: %w", Images, err)
	}
	return nil
}

// Encode renders the manifest as YAML.
func (m Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode asset manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode asset manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses a YAML manifest.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode asset manifest: %w", err)
	}
	return m, nil
}

// ReadManifest reads and parses a manifest file.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's --manifest flag
	if err != nil {
		return Manifest{}, err
	}
	return DecodeManifest(data)
}
