package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/interactive-markers/internal/config"
)

// build info - set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const serverName = "imarker_server"

// VersionInfo is printed by the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func versionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               serverName,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Interactive marker synchronization server",
		Long: `imarker_server keeps a registry of interactive markers, publishes their
updates to WebSocket subscribers and routes client feedback back to the
callbacks registered for each marker.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	root.PersistentFlags().String("config-dir", ".", "Directory containing "+config.FileName)
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	if err := viper.BindPFlag("logLevel", root.PersistentFlags().Lookup("log-level")); err != nil {
		slog.Error("Error binding log-level flag", "error", err)
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("format version info: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			_, err = fmt.Fprintf(out, "%s %s (built %s, %s, %s)\n",
				serverName, info.Version, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
