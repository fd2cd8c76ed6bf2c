package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/store"
)

// NewSignInCommand creates the signin command.
func NewSignInCommand(opts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and print a token for CABIN_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := store.NewAuthStore(opts.client)
			if err := auth.SignIn(cmd.Context(), email, password); err != nil {
				return err
			}
			return printSession(cmd, opts, auth.Snapshot().Session)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// NewSignUpCommand creates the signup command.
func NewSignUpCommand(opts *RootOptions) *cobra.Command {
	var req dto.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account, optionally redeeming an invite",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := store.NewAuthStore(opts.client)
			if err := auth.SignUp(cmd.Context(), req); err != nil {
				return err
			}
			return printSession(cmd, opts, auth.Snapshot().Session)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.InviteToken, "invite", "", "invite token")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// NewMeCommand creates the me command.
func NewMeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := opts.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), profile); done {
				return err
			}
			printProfile(cmd, profile)
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, opts *RootOptions, session *domain.Session) error {
	if done, err := opts.printJSON(cmd.OutOrStdout(), session); done {
		return err
	}
	printProfile(cmd, &session.Profile)
	fmt.Fprintf(cmd.OutOrStdout(), "\nexport CABIN_TOKEN=%s\n", session.Token)
	return nil
}

func printProfile(cmd *cobra.Command, profile *domain.Profile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>\n", profile.FullName, profile.Email)
	fmt.Fprintf(out, "  id:     %s\n", profile.ID)
	fmt.Fprintf(out, "  role:   %s\n", profile.Role)
	fmt.Fprintf(out, "  active: %t\n", profile.IsActive)
}
