package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Build     string `json:"build,omitempty" yaml:"build,omitempty"`
	BuildTime string `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func collectVersionInfo() versionInfo {
	info := versionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if Build != "unknown" {
		info.Build = Build
	}

	// Development builds carry the commit in the module build info.
	if Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range bi.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					info.Commit = setting.Value[:7]
					break
				}
			}
		}
	}
	return info
}

func versionString() string {
	v := Version
	if Build != "unknown" && Build != "" {
		v += " (build: " + Build + ")"
	}
	return v
}

// writeVersion prints info as text, json or yaml.
func writeVersion(w io.Writer, info versionInfo, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		fmt.Fprintf(w, "ferry version %s", info.Version)
		if info.Build != "" {
			fmt.Fprintf(w, " (build: %s)", info.Build)
		}
		if info.BuildTime != "" {
			fmt.Fprintf(w, " [%s]", info.BuildTime)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
		fmt.Fprintf(w, "OS/Arch: %s\n", info.Platform)
		if info.Commit != "" {
			fmt.Fprintf(w, "Commit: %s\n", info.Commit)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func newVersionCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVersion(cmd.OutOrStdout(), collectVersionInfo(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	return cmd
}
