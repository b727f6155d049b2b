package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/quota"
)

// newOrgCmd groups organisation management. Everything here except
// 'usage' talks to the admin surface and needs a bearer token; 'usage'
// is the organisation's own self-service view and needs its key.
func newOrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organisations",
	}

	cmd.AddCommand(
		newOrgCreateCmd(),
		newOrgListCmd(),
		newOrgGetCmd(),
		newOrgUpdateCmd(),
		newOrgRotateKeyCmd(),
		newOrgUsageCmd(),
	)

	return cmd
}

func newOrgCreateCmd() *cobra.Command {
	var (
		name        string
		plan        string
		deviceLimit int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organisation and print its key",
		Long: `Creates an organisation and prints the raw organisation key.

The key is shown exactly once; the server keeps only a hash of it. If
the key is lost, issue a fresh one with 'machineidctl org rotate-key'.
Without --device-limit the plan's default limit applies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireAdminToken(); err != nil {
				return err
			}

			body := map[string]any{
				"name": name,
				"plan": plan,
			}
			if cmd.Flags().Changed("device-limit") {
				body["device_limit"] = deviceLimit
			}

			var out struct {
				Org    org.Organization `json:"org"`
				OrgKey string           `json:"org_key"`
			}
			if err := c.post(cmd.Context(), "/api/v1/admin/orgs", body, &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Organisation %s created.\n\n", out.Org.ID)
			printOrg(w, &out.Org)
			fmt.Fprintf(w, "\nOrganisation key (shown once, store it securely):\n\n  %s\n", out.OrgKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Organisation name (required)")
	cmd.Flags().StringVar(&plan, "plan", string(quota.PlanFree), "Subscription plan: free, starter, pro or enterprise")
	cmd.Flags().Int64Var(&deviceLimit, "device-limit", 0, "Explicit device limit (-1 for unlimited)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newOrgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all organisations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireAdminToken(); err != nil {
				return err
			}

			var out struct {
				Orgs  []org.Organization `json:"orgs"`
				Count int                `json:"count"`
			}
			if err := c.get(cmd.Context(), "/api/v1/admin/orgs", &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			if out.Count == 0 {
				fmt.Fprintln(w, "No organisations.")
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLAN\tLIMIT\tSTATUS")
			for _, o := range out.Orgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.Name, o.Plan, o.DeviceLimit, o.Status)
			}
			return tw.Flush()
		},
	}
}

func newOrgGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <org-id>",
		Short: "Show one organisation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireAdminToken(); err != nil {
				return err
			}

			var o org.Organization
			if err := c.get(cmd.Context(), "/api/v1/admin/orgs/"+args[0], &o); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), o)
			}
			printOrg(cmd.OutOrStdout(), &o)
			return nil
		},
	}
}

func newOrgUpdateCmd() *cobra.Command {
	var (
		name        string
		plan        string
		deviceLimit int64
		status      string
	)

	cmd := &cobra.Command{
		Use:   "update <org-id>",
		Short: "Update an organisation's plan, limit, name or status",
		Long: `Patches only the fields whose flags are set; everything else is left
alone. Changing --plan resets the device limit to the plan's default
unless --device-limit is set in the same call. Limit changes take
effect on the next admission decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireAdminToken(); err != nil {
				return err
			}

			patch := map[string]any{}
			if cmd.Flags().Changed("name") {
				patch["name"] = name
			}
			if cmd.Flags().Changed("plan") {
				patch["plan"] = plan
			}
			if cmd.Flags().Changed("device-limit") {
				patch["device_limit"] = deviceLimit
			}
			if cmd.Flags().Changed("status") {
				patch["status"] = status
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update: set at least one of --name, --plan, --device-limit, --status")
			}

			var o org.Organization
			if err := c.patch(cmd.Context(), "/api/v1/admin/orgs/"+args[0], patch, &o); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), o)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Organisation %s updated.\n\n", o.ID)
			printOrg(cmd.OutOrStdout(), &o)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New organisation name")
	cmd.Flags().StringVar(&plan, "plan", "", "New plan: free, starter, pro or enterprise")
	cmd.Flags().Int64Var(&deviceLimit, "device-limit", 0, "New device limit (-1 for unlimited)")
	cmd.Flags().StringVar(&status, "status", "", "New status: active or suspended")

	return cmd
}

func newOrgRotateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <org-id>",
		Short: "Replace an organisation's key",
		Long: `Issues a fresh organisation key and invalidates the old one
immediately. Devices presenting the old key are locked out until they
receive the new one, so plan the distribution before rotating.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireAdminToken(); err != nil {
				return err
			}

			var out struct {
				OrgID  string `json:"org_id"`
				OrgKey string `json:"org_key"`
			}
			if err := c.post(cmd.Context(), "/api/v1/admin/orgs/"+args[0]+"/key", nil, &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Key rotated for organisation %s. The old key no longer works.\n", out.OrgID)
			fmt.Fprintf(w, "\nNew organisation key (shown once, store it securely):\n\n  %s\n", out.OrgKey)
			return nil
		},
	}
}

func newOrgUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show quota usage for the calling organisation",
		Long: `Shows the calling organisation's plan, device limit and current
active count. Unlike the rest of 'org', this authenticates with the
organisation key, not the admin token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.requireOrgKey(); err != nil {
				return err
			}

			var out struct {
				ID          string      `json:"id"`
				Name        string      `json:"name"`
				Plan        string      `json:"plan"`
				Status      string      `json:"status"`
				DeviceLimit quota.Limit `json:"device_limit"`
				ActiveCount int         `json:"active_count"`
			}
			if err := c.get(cmd.Context(), "/api/v1/org", &out); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Organisation:    %s (%s)\n", out.Name, out.ID)
			fmt.Fprintf(w, "Plan:            %s\n", out.Plan)
			fmt.Fprintf(w, "Status:          %s\n", out.Status)
			fmt.Fprintf(w, "Active devices:  %d of %s\n", out.ActiveCount, out.DeviceLimit)
			return nil
		},
	}
}

// printOrg renders one organisation as aligned key/value lines.
func printOrg(w io.Writer, o *org.Organization) {
	fmt.Fprintf(w, "  ID:      %s\n", o.ID)
	fmt.Fprintf(w, "  Name:    %s\n", o.Name)
	fmt.Fprintf(w, "  Plan:    %s\n", o.Plan)
	fmt.Fprintf(w, "  Limit:   %s\n", o.DeviceLimit)
	fmt.Fprintf(w, "  Status:  %s\n", o.Status)
	if !o.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  Created: %s\n", o.CreatedAt.UTC().Format(time.RFC3339))
	}
}
