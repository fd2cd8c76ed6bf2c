package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/store"
)

// NewChatCommand creates the admin assistant command. With a message
// argument it asks once; otherwise it reads one message per line.
func NewChatCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the admin assistant (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			chat := store.NewAdminChatStore(opts.client)
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				reply, err := chat.Send(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, "> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
				case "/retry":
					reply, err := chat.Retry(cmd.Context())
					printChatResult(cmd, reply, err)
				case "/clear":
					chat.Clear()
				default:
					reply, err := chat.Send(cmd.Context(), line)
					printChatResult(cmd, reply, err)
				}
				fmt.Fprint(out, "> ")
			}
			fmt.Fprintln(out)
			return scanner.Err()
		},
	}
}

func printChatResult(cmd *cobra.Command, reply string, err error) {
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v (type /retry to resend)\n", err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", reply)
}
