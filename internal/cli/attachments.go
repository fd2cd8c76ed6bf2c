package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/client"
	"github.com/cozycabin/cozycabin/internal/store"
)

func newTicketsAttachCommand(opts *RootOptions) *cobra.Command {
	var commentID string
	cmd := &cobra.Command{
		Use:   "attach <ticket-id> <file>...",
		Short: "Upload files to a ticket in parallel",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []client.File
			for _, path := range args[1:] {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, client.File{
					Name:        filepath.Base(path),
					ContentType: mime.TypeByExtension(filepath.Ext(path)),
					Body:        f,
				})
			}
			var comment *string
			if commentID != "" {
				comment = &commentID
			}
			uploaded, err := store.NewTicketStore(opts.client).UploadAttachments(cmd.Context(), args[0], files, comment)
			for _, attachment := range uploaded {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s\n", attachment.FileName, attachment.ID)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&commentID, "comment", "", "link the files to a comment")
	return cmd
}

// NewAttachmentsCommand groups attachment commands.
func NewAttachmentsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Download or delete ticket attachments",
	}
	cmd.AddCommand(newAttachmentsDownloadCommand(opts))
	cmd.AddCommand(newAttachmentsDeleteCommand(opts))
	return cmd
}

func newAttachmentsDownloadCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <attachment-id>",
		Short: "Download an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			body, err := opts.client.DownloadAttachment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.Copy(w, body)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `destination file, "-" for stdout`)
	return cmd
}

func newAttachmentsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <attachment-id>",
		Short: "Delete an attachment (uploader or staff)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.NewTicketStore(opts.client).DeleteAttachment(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
