package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/artpar/actionkit/bootstrap"
	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=... -X main.commit=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionJSON bool

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// currentVersion falls back to the VCS stamp of the binary when the
// commit and date were not injected at link time.
func currentVersion() versionInfo {
	v := versionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && v.Commit == "":
				v.Commit = s.Value
			case s.Key == "vcs.time" && v.BuildDate == "":
				v.BuildDate = s.Value
			}
		}
	}
	return v
}

// buildInfo is what the server reports on GET /version.
func buildInfo() bootstrap.BuildInfo {
	v := currentVersion()
	return bootstrap.BuildInfo{Version: v.Version, Commit: v.Commit}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := currentVersion()
		out := cmd.OutOrStdout()
		if versionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		fmt.Fprintf(out, "actionkit %s (%s, %s)\n", v.Version, v.Go, v.Platform)
		if v.Commit != "" {
			fmt.Fprintf(out, "  commit: %s\n", v.Commit)
		}
		if v.BuildDate != "" {
			fmt.Fprintf(out, "  built:  %s\n", v.BuildDate)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(versionCmd)
}
