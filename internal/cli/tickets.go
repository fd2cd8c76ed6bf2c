package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/client"
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/store"
)

// NewTicketsCommand groups ticket commands.
func NewTicketsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"ticket", "t"},
		Short:   "List, file and work on tickets",
	}
	cmd.AddCommand(newTicketsListCommand(opts))
	cmd.AddCommand(newTicketsShowCommand(opts))
	cmd.AddCommand(newTicketsCreateCommand(opts))
	cmd.AddCommand(newTicketsUpdateCommand(opts))
	cmd.AddCommand(newTicketsAssignCommand(opts))
	cmd.AddCommand(newTicketsDeleteCommand(opts))
	cmd.AddCommand(newTicketsCommentCommand(opts))
	cmd.AddCommand(newTicketsEditCommentCommand(opts))
	cmd.AddCommand(newTicketsAttachCommand(opts))
	return cmd
}

func newTicketsListCommand(opts *RootOptions) *cobra.Command {
	var (
		statuses, priorities []string
		query                client.TicketQuery
		byPriority           bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				query.Statuses = append(query.Statuses, domain.TicketStatus(s))
			}
			for _, p := range priorities {
				query.Priorities = append(query.Priorities, domain.TicketPriority(p))
			}
			tickets := store.NewTicketStore(opts.client)
			if err := tickets.List(cmd.Context(), query); err != nil {
				return err
			}
			if byPriority {
				tickets.SortByPriority()
			}
			state := tickets.Snapshot()
			if done, err := opts.printJSON(cmd.OutOrStdout(), state.Tickets); done {
				return err
			}
			printTicketTable(cmd.OutOrStdout(), state.Tickets)
			if state.HasMore {
				fmt.Fprintf(cmd.ErrOrStderr(), "more tickets match; rerun with --page %d\n", state.Page+1)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "filter by priority (repeatable)")
	cmd.Flags().StringVar(&query.Assignee, "assignee", "", `assignee id or "unassigned"`)
	cmd.Flags().StringVar(&query.Search, "search", "", "search subject and description")
	cmd.Flags().IntVar(&query.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&query.PageSize, "page-size", 20, "tickets per page")
	cmd.Flags().BoolVar(&byPriority, "sort-priority", false, "sort by priority instead of age")
	return cmd
}

func newTicketsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show a ticket with its comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets := store.NewTicketStore(opts.client)
			if err := tickets.SelectTicket(cmd.Context(), args[0]); err != nil {
				return err
			}
			state := tickets.Snapshot()
			if done, err := opts.printJSON(cmd.OutOrStdout(), state); done {
				return err
			}
			printTicketDetail(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func newTicketsCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		draft      store.TicketDraft
		priority   string
		customerID string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a new ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Priority = domain.TicketPriority(priority)
			if customerID != "" {
				draft.CustomerID = &customerID
			}
			ticket, err := store.NewTicketStore(opts.client).Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return printTicket(cmd, opts, ticket)
		},
	}
	cmd.Flags().StringVar(&draft.Subject, "subject", "", "short summary")
	cmd.Flags().StringVar(&draft.Description, "description", "", "full description")
	cmd.Flags().StringVar(&priority, "priority", "", "urgent|high|normal|medium|low (default low)")
	cmd.Flags().StringSliceVar(&draft.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&customerID, "customer", "", "file on behalf of a customer (staff only)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newTicketsUpdateCommand(opts *RootOptions) *cobra.Command {
	var (
		subject, description, status, priority, assignee string
		tags                                             []string
	)
	cmd := &cobra.Command{
		Use:   "update <ticket-id>",
		Short: "Change ticket fields; only flags given are sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch dto.UpdateTicketRequest
			flags := cmd.Flags()
			if flags.Changed("subject") {
				patch.Subject = &subject
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("status") {
				s := domain.TicketStatus(status)
				patch.Status = &s
			}
			if flags.Changed("priority") {
				p := domain.TicketPriority(priority)
				patch.Priority = &p
			}
			if flags.Changed("assignee") {
				patch.AssignedTo = &assignee
			}
			if flags.Changed("tag") {
				patch.Tags = tags
			}
			ticket, err := store.NewTicketStore(opts.client).Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return printTicket(cmd, opts, ticket)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "new subject")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", `assignee id, "" to unassign`)
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	return cmd
}

func newTicketsAssignCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <ticket-id>",
		Short: "Assign a ticket to yourself and start work on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := store.NewTicketStore(opts.client).AssignToSelf(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printTicket(cmd, opts, ticket)
		},
	}
}

func newTicketsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ticket-id>",
		Short: "Delete a ticket permanently (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.NewTicketStore(opts.client).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newTicketsCommentCommand(opts *RootOptions) *cobra.Command {
	var internal bool
	cmd := &cobra.Command{
		Use:   "comment <ticket-id> <text>",
		Short: "Reply to a ticket",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comment, err := store.NewTicketStore(opts.client).AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "), internal)
			if err != nil {
				return err
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), comment); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "comment %s added\n", comment.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "staff-only note")
	return cmd
}

func newTicketsEditCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit-comment <comment-id> <text>",
		Short: "Change the text of your own comment",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comment, err := store.NewTicketStore(opts.client).EditComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if done, err := opts.printJSON(cmd.OutOrStdout(), comment); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "comment %s updated\n", comment.ID)
			return nil
		},
	}
}

func printTicket(cmd *cobra.Command, opts *RootOptions, ticket *domain.Ticket) error {
	if done, err := opts.printJSON(cmd.OutOrStdout(), ticket); done {
		return err
	}
	printTicketTable(cmd.OutOrStdout(), []domain.Ticket{*ticket})
	return nil
}

func printTicketTable(w io.Writer, tickets []domain.Ticket) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tSTATUS\tASSIGNEE\tCREATED\tSUBJECT")
	for _, ticket := range tickets {
		assignee := "-"
		if ticket.AssignedTo != nil {
			assignee = *ticket.AssignedTo
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ticket.ID, ticket.Priority, ticket.Status, assignee,
			ticket.CreatedAt.Local().Format("2006-01-02 15:04"), ticket.Subject)
	}
	_ = tw.Flush()
}

func printTicketDetail(w io.Writer, state store.TicketState) {
	ticket := state.SelectedTicket
	if ticket == nil {
		return
	}
	fmt.Fprintf(w, "%s\n%s\n\n", ticket.Subject, strings.Repeat("=", len(ticket.Subject)))
	fmt.Fprintf(w, "id: %s  status: %s  priority: %s\n", ticket.ID, ticket.Status, ticket.Priority)
	if len(ticket.Tags) > 0 {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(ticket.Tags, ", "))
	}
	fmt.Fprintf(w, "\n%s\n", ticket.Description)

	for _, comment := range state.SelectedTicketComments {
		label := ""
		if comment.IsInternal {
			label = " [internal]"
		}
		fmt.Fprintf(w, "\n--- %s %s%s\n%s\n", comment.AuthorID, comment.CreatedAt.Local().Format("2006-01-02 15:04"), label, comment.Content)
	}
	if len(state.SelectedTicketAttachments) > 0 {
		fmt.Fprintln(w, "\nattachments:")
		for _, attachment := range state.SelectedTicketAttachments {
			fmt.Fprintf(w, "  %s  %s (%d bytes)\n", attachment.ID, attachment.FileName, attachment.FileSize)
		}
	}
}
