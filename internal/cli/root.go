// Package cli implements the cabin command line client.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/client"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL  string
	Token   string
	Format  string // "json" | "text"
	Timeout time.Duration

	client *client.Client
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. CABIN_API_URL and CABIN_TOKEN
// (from the environment or a .env file) fill in unset flags.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cabin",
		Short:         "CozyCabin support desk client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			_ = godotenv.Load()
			if opts.APIURL == "" {
				opts.APIURL = os.Getenv("CABIN_API_URL")
			}
			if opts.APIURL == "" {
				opts.APIURL = "http://localhost:8080"
			}
			if opts.Token == "" {
				opts.Token = os.Getenv("CABIN_TOKEN")
			}
			opts.client = client.NewClient(opts.APIURL, opts.Token, client.WithTimeout(opts.Timeout))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "API base URL (default $CABIN_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token (default $CABIN_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 60*time.Second, "request timeout")

	cmd.AddCommand(NewSignInCommand(opts))
	cmd.AddCommand(NewSignUpCommand(opts))
	cmd.AddCommand(NewMeCommand(opts))
	cmd.AddCommand(NewTicketsCommand(opts))
	cmd.AddCommand(NewAttachmentsCommand(opts))
	cmd.AddCommand(NewInvitesCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// printJSON writes v indented when --format=json and reports whether it did.
func (o *RootOptions) printJSON(w io.Writer, v any) (bool, error) {
	if o.Format != "json" {
		return false, nil
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return true, encoder.Encode(v)
}
