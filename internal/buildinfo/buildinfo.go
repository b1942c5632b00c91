// Package buildinfo loads the build metadata shipped next to the application.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileName is the metadata file written by the packaging pipeline.
const FileName = "build_info.json"

// Channel names a release channel.
type Channel string

const (
	ChannelStable      Channel = "stable"
	ChannelPTB         Channel = "ptb"
	ChannelCanary      Channel = "canary"
	ChannelDevelopment Channel = "development"
)

// Valid reports whether c is one of the known release channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelStable, ChannelPTB, ChannelCanary, ChannelDevelopment:
		return true
	}
	return false
}

// Info is the read-only build metadata record.
type Info struct {
	ReleaseChannel    Channel `json:"releaseChannel"`
	Version           string  `json:"version"`
	StandaloneModules bool    `json:"standaloneModules"`
	Debug             bool    `json:"debug"`
	NewUpdater        bool    `json:"newUpdater"`
}

// IsStandaloneModules reports a development build that loads modules from disk
// instead of through an updater.
func (i Info) IsStandaloneModules() bool {
	return i.ReleaseChannel == ChannelDevelopment && i.StandaloneModules
}

// Load reads and validates build metadata from path.
func Load(path string) (Info, error) {
	//nolint:gosec // G304: build metadata path comes from the install layout
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("read build info: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates build metadata.
func Parse(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode build info: %w", err)
	}
	info.ReleaseChannel = Channel(strings.ToLower(strings.TrimSpace(string(info.ReleaseChannel))))
	if !info.ReleaseChannel.Valid() {
		return Info{}, fmt.Errorf("unknown release channel %q", info.ReleaseChannel)
	}
	if strings.TrimSpace(info.Version) == "" {
		return Info{}, fmt.Errorf("build info has no version")
	}
	return info, nil
}
