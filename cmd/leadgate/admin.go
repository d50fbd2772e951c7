package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Strob0t/leadgate/internal/adapter/cacheddir"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator tooling for owners, duplicate groups and users",
	}
	cmd.AddCommand(
		newResyncOwnersCmd(),
		newRepairGroupCmd(),
		newPutUserCmd(),
		newWhoisCmd(),
	)
	return cmd
}

func newResyncOwnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync-owners",
		Short: "Rebuild assignments and shares from every lead's owner field",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.binder.ResyncAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resynced %d leads\n", n)
			return nil
		},
	}
}

func newRepairGroupCmd() *cobra.Command {
	var key string
	var inline bool
	cmd := &cobra.Command{
		Use:   "repair-group",
		Short: "Re-settle the duplicate group of one contact key",
		Example: `  leadgate admin repair-group --key 5551234
  leadgate admin repair-group --key 5551234 --inline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("--key is required")
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{queue: !inline})
			if err != nil {
				return err
			}
			defer a.Close()

			if inline {
				if err := a.dedup.RepairGroup(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "group %q repaired\n", key)
				return nil
			}
			if err := a.dedup.EnqueueRepair(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repair of %q scheduled\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "contact key of the group (required)")
	cmd.Flags().BoolVar(&inline, "inline", false, "repair in this process instead of queueing")
	return cmd
}

func newPutUserCmd() *cobra.Command {
	var (
		id        string
		roles     []string
		pipelines []string
	)
	cmd := &cobra.Command{
		Use:   "put-user",
		Short: "Create or replace a directory user with roles and pipeline permissions",
		Example: `  leadgate admin put-user --id alice --role Agent --pipeline North --pipeline South
  leadgate admin put-user --id carol --role "Team Leader"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(id) == "" {
				return errors.New("--id is required")
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{cache: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.pgDir == nil {
				return errors.New("put-user needs the postgres store")
			}

			rows := make([]any, 0, len(pipelines))
			for _, p := range pipelines {
				rows = append(rows, p)
			}
			if err := a.pgDir.PutUser(cmd.Context(), id, roles, rows); err != nil {
				return err
			}
			// Drop the cached entry so servers sharing L2 see the new roles.
			if cd, ok := a.directory.(*cacheddir.Directory); ok {
				if err := cd.Invalidate(cmd.Context(), id); err != nil {
					slog.Warn("directory cache invalidate failed", "user_id", id, "error", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (required)")
	cmd.Flags().StringArrayVar(&roles, "role", nil, "role name (repeatable)")
	cmd.Flags().StringArrayVar(&pipelines, "pipeline", nil, "allowed pipeline (repeatable)")
	return cmd
}

func newWhoisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whois <user-id>",
		Short: "Show how the gate classifies a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.directory.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ID\t%s\n", u.ID)
			fmt.Fprintf(w, "ROLES\t%s\n", strings.Join(u.Roles, ", "))
			fmt.Fprintf(w, "PIPELINES\t%s\n", strings.Join(u.PipelineList(), ", "))
			fmt.Fprintf(w, "PRIVILEGED\t%t\n", a.policy.Privileged(u))
			fmt.Fprintf(w, "TEAM LEAD\t%t\n", a.policy.TeamLead(u))
			fmt.Fprintf(w, "AGENT\t%t\n", a.policy.Agent(u))
			return w.Flush()
		},
	}
}
