// MachineID Control - Operator CLI for the Admission Gate
//
// machineidctl drives a running MachineID Core server over its HTTP
// API: creating and updating organisations, rotating keys, inspecting
// fleets, and revoking devices. It holds no state of its own; the
// server remains the single source of truth.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineid-io/machineid-core/internal/api"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// defaultServer is where machineidctl looks for the gate when neither
// the --server flag nor MACHINEID_SERVER is set.
const defaultServer = "http://127.0.0.1:8080"

// Environment fallbacks. Flags win over the environment; the
// environment wins over defaults. The names follow the server's own
// MACHINEID_ override convention so one shell profile configures both.
const (
	envServer      = "MACHINEID_SERVER"
	envAdminToken  = "MACHINEID_ADMIN_TOKEN"
	envOrgKey      = "MACHINEID_ORG_KEY"
	envAdminSecret = "MACHINEID_ADMIN_SECRET"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra has already printed the error.
		os.Exit(1)
	}
}

// newRootCmd builds the root command and its full subcommand tree.
// Commands are constructed fresh on every call so tests can execute
// isolated instances without flag state leaking between runs.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machineidctl",
		Short: "Operate a MachineID admission gate",
		Long: `machineidctl is the operator console for a MachineID Core server.

Organisation management needs an admin bearer token (--token or
MACHINEID_ADMIN_TOKEN; mint one with 'machineidctl token mint').
Fleet commands act as a single organisation and need its key
(--org-key or MACHINEID_ORG_KEY).`,
		SilenceUsage: true,
	}

	cmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	cmd.PersistentFlags().String("server", defaultServer, "Base URL of the MachineID server")
	cmd.PersistentFlags().String("token", "", "Admin bearer token for organisation management")
	cmd.PersistentFlags().String("org-key", "", "Organisation key for fleet commands")
	cmd.PersistentFlags().Int("timeout", 10, "Request timeout in seconds")
	cmd.PersistentFlags().Bool("json", false, "Print raw JSON responses instead of tables")

	cmd.AddCommand(
		newOrgCmd(),
		newDeviceCmd(),
		newTokenCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return cmd
}

// newStatusCmd reports server health and runtime metrics.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and runtime metrics",
		Long:  `Queries the server's open health and metrics endpoints. Needs no credentials.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			if err := c.get(cmd.Context(), "/api/v1/health", &health); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			var metrics api.SystemMetrics
			if err := c.get(cmd.Context(), "/api/v1/metrics", &metrics); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), metrics)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Server:         %s\n", c.baseURL)
			fmt.Fprintf(w, "Status:         %s\n", health.Status)
			fmt.Fprintf(w, "Version:        %s\n", metrics.Version)
			fmt.Fprintf(w, "Uptime:         %s\n", (time.Duration(metrics.UptimeSeconds) * time.Second).String())
			fmt.Fprintf(w, "Organisations:  %d\n", metrics.Organisations.Total)
			fmt.Fprintf(w, "Database:       %d connections open, %d migrations pending\n",
				metrics.Database.OpenConnections, metrics.Database.MigrationsPending)
			fmt.Fprintf(w, "MQTT:           %s\n", connState(metrics.MQTT.Connected))
			fmt.Fprintf(w, "InfluxDB:       %s\n", connState(metrics.InfluxDB.Connected))
			return nil
		},
	}
}

// newVersionCmd prints client build information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "version: %s\n", version)
			fmt.Fprintf(w, "commit:  %s\n", commit)
			fmt.Fprintf(w, "built:   %s\n", date)
		},
	}
}

func connState(connected bool) string {
	if connected {
		return "connected"
	}
	return "not connected"
}
