package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/store"
)

// NewInvitesCommand groups invite commands.
func NewInvitesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "Invite staff members",
	}
	cmd.AddCommand(newInvitesListCommand(opts))
	cmd.AddCommand(newInvitesSendCommand(opts))
	cmd.AddCommand(newInvitesVerifyCommand(opts))
	return cmd
}

func newInvitesListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invites (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			invites := store.NewInviteStore(opts.client)
			if err := invites.Load(cmd.Context()); err != nil {
				return err
			}
			list := invites.Snapshot().Invites
			if done, err := opts.printJSON(cmd.OutOrStdout(), list); done {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "EMAIL\tROLE\tEXPIRES\tUSED")
			for _, invite := range list {
				used := "-"
				if invite.UsedAt != nil {
					used = invite.UsedAt.Local().Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", invite.Email, invite.Role, invite.ExpiresAt.Local().Format("2006-01-02"), used)
			}
			return tw.Flush()
		},
	}
}

func newInvitesSendCommand(opts *RootOptions) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Invite someone as agent or admin (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			invites := store.NewInviteStore(opts.client)
			if err := invites.Create(cmd.Context(), email, domain.Role(role)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), invites.Snapshot().Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee e-mail")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAgent), "agent|admin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newInvitesVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Check an invite token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verification, err := store.NewInviteStore(opts.client).Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), verification); done {
				return err
			}
			if !verification.IsValid {
				fmt.Fprintln(cmd.OutOrStdout(), "invite is not valid")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid invite for %s as %s\n", verification.Email, verification.Role)
			return nil
		},
	}
}
