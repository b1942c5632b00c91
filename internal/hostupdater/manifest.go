package hostupdater

import (
	"encoding/json"
	"fmt"
	"strings"

	"ferry/internal/update"
)

// Manifest describes the host release an install should be running.
type Manifest struct {
	HostVersion string             `json:"host_version"`
	Packages    map[string]Package `json:"packages"`

	// ChecksumsURL lists hashes for packages that carry no sha256 of their own.
	ChecksumsURL string `json:"checksums_url,omitempty"`
}

// Package is a downloadable host build for one platform.
type Package struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256,omitempty"`
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if !update.ParseVersion(m.HostVersion).Valid() {
		return Manifest{}, fmt.Errorf("manifest host_version %q is not a version", m.HostVersion)
	}
	for key, pkg := range m.Packages {
		if strings.TrimSpace(pkg.URL) == "" {
			return Manifest{}, fmt.Errorf("manifest package %s has no url", key)
		}
	}
	return m, nil
}

// PlatformKey names the package entry for a platform, e.g. "linux-amd64".
func PlatformKey(goos, goarch string) string {
	return goos + "-" + goarch
}
