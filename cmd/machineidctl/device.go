package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineid-io/machineid-core/internal/device"
)

// newDeviceCmd groups fleet commands. All of them authenticate with
// the organisation key and see only that organisation's devices.
func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect and manage an organisation's device fleet",
	}

	cmd.AddCommand(
		newDeviceListCmd(),
		newDeviceRevokeCmd(),
		newDeviceCheckCmd(),
	)

	return cmd
}

func newDeviceListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the organisation's devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireOrgKey(); err != nil {
				return err
			}

			path := "/api/v1/devices"
			if state != "" {
				path += "?state=" + url.QueryEscape(state)
			}

			var out struct {
				Devices []device.Record `json:"devices"`
				Count   int             `json:"count"`
			}
			if err := c.get(cmd.Context(), path, &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			if out.Count == 0 {
				fmt.Fprintln(w, "No devices.")
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE ID\tSTATE\tFIRST REGISTERED\tLAST VALIDATED")
			for _, rec := range out.Devices {
				lastValidated := "never"
				if rec.LastValidatedAt != nil {
					lastValidated = rec.LastValidatedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					rec.DeviceID,
					rec.State,
					rec.FirstRegisteredAt.UTC().Format(time.RFC3339),
					lastValidated,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state: active or revoked")

	return cmd
}

func newDeviceRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Revoke a device",
		Long: `Revokes a device: it stops validating immediately and its quota slot
is freed. The record and its history are kept, so the same identifier
can be re-registered later if a slot is available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireOrgKey(); err != nil {
				return err
			}

			var out struct {
				Device device.Record `json:"device"`
			}
			if err := c.delete(cmd.Context(), "/api/v1/devices/"+url.PathEscape(args[0]), &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Device %s revoked; its quota slot is free.\n", out.Device.DeviceID)
			return nil
		},
	}
}

func newDeviceCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <device-id>",
		Short: "Ask the gate whether a device is currently admitted",
		Long: `Runs a real validation call for the device and prints the verdict.
This is the same check devices perform themselves, so it stamps the
device's last-validated time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireOrgKey(); err != nil {
				return err
			}

			body := map[string]string{"deviceId": args[0]}
			var out struct {
				Allowed   bool   `json:"allowed"`
				Code      string `json:"code"`
				RequestID string `json:"request_id"`
			}
			if err := c.post(cmd.Context(), "/api/v1/devices/validate", body, &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}
			if out.Allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: allowed\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: denied (%s)\n", args[0], out.Code)
			}
			return nil
		},
	}
}
