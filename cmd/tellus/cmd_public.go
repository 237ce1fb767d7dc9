package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tellus/tellus/internal/client"
	"github.com/tellus/tellus/internal/handler/dto"
)

type stateFunc func() *state

func categoriesCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List box categories and their subcategories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := st().client.Categories(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range cats {
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(c.Label), mutedStyle.Render("("+c.Key+")"))
				for _, sub := range c.Subcategories {
					fmt.Fprintf(out, "  - %s\n", sub)
				}
			}
			return nil
		},
	}
}

func boxCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "box <box-token>",
		Short: "Show a complaint box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := st().client.Box(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(view.Title))
			if view.Locked {
				fmt.Fprintln(out, mutedStyle.Render(`This box is protected. Run "tellus unlock `+view.Token+`" to open it.`))
				return nil
			}
			if view.Description != "" {
				fmt.Fprintln(out, view.Description)
			}
			if view.CategoryLabel != "" {
				fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Category:"), view.CategoryLabel)
			}
			if len(view.Subcategories) > 0 {
				fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Topics:"), strings.Join(view.Subcategories, ", "))
			} else if view.RequiresCustomInput {
				fmt.Fprintln(out, mutedStyle.Render("Describe the topic with --category when submitting."))
			}
			return nil
		},
	}
}

func unlockCmd(st stateFunc) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "unlock <box-token>",
		Short: "Unlock a protected box with its secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := st()
			grant, err := s.client.Unlock(cmd.Context(), args[0], secret)
			if err != nil {
				return err
			}
			if err := s.saveGrant(cmd.Context(), args[0], grant.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s until %s\n", okStyle.Render("Unlocked"), grant.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "box secret")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func submitCmd(st stateFunc) *cobra.Command {
	var (
		in   client.Complaint
		file string
	)
	cmd := &cobra.Command{
		Use:   "submit <box-token>",
		Short: "Submit an anonymous complaint",
		Long: `Submit an anonymous complaint to a box.

For boxes with subcategories, --category must name one of them. Choosing
"Other" requires --custom-category. The printed tracking token is the only
way to follow the complaint later; it is also recorded locally.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open attachment: %w", err)
				}
				defer f.Close()
				in.Attachment = &client.Attachment{
					Name:        filepath.Base(file),
					ContentType: mime.TypeByExtension(filepath.Ext(file)),
					Body:        f,
				}
			}

			receipt, err := st().client.Submit(cmd.Context(), args[0], in)
			if receipt == nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Complaint received."), "Tracking token:")
			fmt.Fprintln(out, tokenStyle.Render(receipt.TrackingToken))
			fmt.Fprintln(out, mutedStyle.Render("Keep this token to check the status of your complaint."))
			if err != nil {
				return fmt.Errorf("complaint was submitted but not saved locally: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "complaint title")
	cmd.Flags().StringVar(&in.Message, "message", "", "complaint message")
	cmd.Flags().StringVar(&in.Category, "category", "", "subcategory, or a free-text topic")
	cmd.Flags().StringVar(&in.CustomCategory, "custom-category", "", `topic when --category is "Other"`)
	cmd.Flags().StringVar(&file, "file", "", "attachment (image or PDF, up to 5 MB)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func trackCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "track <tracking-token>",
		Short: "Check the status of a complaint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := st().client.Track(cmd.Context(), strings.ToUpper(strings.TrimSpace(args[0])))
			if err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("no complaint found for %s", args[0])
				}
				return err
			}
			printTracked(cmd.OutOrStdout(), *c)
			return nil
		},
	}
}

func mineCmd(st stateFunc) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "mine <box-token>",
		Short: "List complaints you submitted to a box from this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := st()
			if reset {
				if err := s.ledger.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Local complaint list cleared."))
				return nil
			}
			complaints, err := s.client.Mine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(complaints) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No complaints submitted to this box from this device."))
				return nil
			}
			for i, c := range complaints {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printTracked(out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "discard every locally recorded tracking token")
	return cmd
}

func printTracked(out io.Writer, c dto.TrackedComplaint) {
	fmt.Fprintf(out, "%s  %s  %s\n", tokenStyle.Render(c.Token), renderStatus(c.Status), mutedStyle.Render(c.CreatedAt.Local().Format("2006-01-02")))
	fmt.Fprintln(out, boldStyle.Render(c.Title))
	if c.Category != "" {
		fmt.Fprintln(out, mutedStyle.Render(c.Category))
	}
	fmt.Fprintln(out, c.Message)
	if c.Attachment != nil {
		fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Attachment:"), c.Attachment.URL)
	}
	if c.AdminReply != "" {
		fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Reply:"), c.AdminReply)
	}
}

func feedbackCmd(st stateFunc) *cobra.Command {
	var (
		rating  int
		message string
	)
	cmd := &cobra.Command{
		Use:   "feedback <box-token>",
		Short: "Rate a box, or list its recent feedback when --rating is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := st().client
			out := cmd.OutOrStdout()
			if rating != 0 {
				if _, err := c.SubmitFeedback(cmd.Context(), args[0], rating, message); err != nil {
					return err
				}
				fmt.Fprintln(out, okStyle.Render("Thanks for your feedback."))
				return nil
			}

			items, err := c.Feedback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No feedback yet."))
				return nil
			}
			for _, f := range items {
				stars := strings.Repeat("*", f.Rating) + strings.Repeat(".", 5-f.Rating)
				fmt.Fprintf(out, "%s  %s  %s\n", tokenStyle.Render(stars), mutedStyle.Render(f.CreatedAt.Local().Format("2006-01-02")), f.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&message, "message", "", "optional comment")
	return cmd
}
