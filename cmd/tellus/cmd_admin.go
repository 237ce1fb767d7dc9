package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tellus/tellus/internal/client"
	"github.com/tellus/tellus/internal/handler/dto"
	"github.com/tellus/tellus/internal/model"
)

func signupCmd(st stateFunc) *cobra.Command {
	var in dto.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.ConfirmPassword == "" {
				in.ConfirmPassword = in.Password
			}
			session, err := st().client.SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s as %s\n", okStyle.Render("Signed up"), displayName(session))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password, at least 6 characters")
	cmd.Flags().StringVar(&in.ConfirmPassword, "confirm-password", "", "password again (defaults to --password)")
	for _, f := range []string{"username", "email", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func loginCmd(st stateFunc) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as an admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := st().client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s as %s\n", okStyle.Render("Signed in"), displayName(session))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func displayName(s *dto.SessionResponse) string {
	if s.Profile == nil {
		return "admin"
	}
	return s.Profile.Username
}

func logoutCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st().client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func boxesCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "boxes",
		Short: "List your boxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			boxes, err := st().client.Boxes(cmd.Context())
			if err != nil {
				return err
			}
			if len(boxes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(`No boxes yet. Create one with "tellus create-box".`))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTOKEN\tTITLE\tCOMPLAINTS\tFEEDBACK\tRATING\tLOCKED")
			for _, b := range boxes {
				var complaints, feedback int64
				rating := "-"
				if b.Stats != nil {
					complaints, feedback = b.Stats.ComplaintCount, b.Stats.FeedbackCount
					if b.Stats.AvgRating != nil {
						rating = fmt.Sprintf("%.1f", *b.Stats.AvgRating)
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%t\n", b.ID, b.Token, b.Title, complaints, feedback, rating, b.RequiresSecret)
			}
			return tw.Flush()
		},
	}
}

func createBoxCmd(st stateFunc) *cobra.Command {
	var in dto.CreateBoxRequest
	cmd := &cobra.Command{
		Use:   "create-box",
		Short: "Create a complaint box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := st().client.CreateBox(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Created"), box.Title)
			fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Share token:"), tokenStyle.Render(box.Token))
			fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Box id:"), box.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "box title")
	cmd.Flags().StringVar(&in.Description, "description", "", "box description")
	cmd.Flags().StringVar(&in.Category, "category", "", `category key (see "tellus categories")`)
	cmd.Flags().StringVar(&in.Secret, "secret", "", "optional secret visitors must enter")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func complaintsCmd(st stateFunc) *cobra.Command {
	var q client.ComplaintQuery
	cmd := &cobra.Command{
		Use:   "complaints <box-id>",
		Short: "List complaints in one of your boxes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			complaints, err := st().client.Complaints(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(complaints) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No complaints match."))
				return nil
			}
			for i, c := range complaints {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s  %s  %s  %s\n", mutedStyle.Render(c.ID), tokenStyle.Render(c.Token), renderStatus(c.Status), mutedStyle.Render(c.CreatedAt.Local().Format("2006-01-02 15:04")))
				fmt.Fprintln(out, boldStyle.Render(c.Title))
				fmt.Fprintln(out, c.Message)
				if c.AdminReply != "" {
					fmt.Fprintf(out, "%s %s\n", boldStyle.Render("Reply:"), c.AdminReply)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.Search, "search", "q", "", "match title, message or category")
	cmd.Flags().StringVar(&q.Status, "status", "", "received, under_review, solved or all")
	cmd.Flags().StringVar(&q.Sort, "sort", "", "newest or oldest")
	return cmd
}

func setStatusCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <complaint-id> <received|under_review|solved>",
		Short: "Change the status of a complaint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := st().client.SetStatus(cmd.Context(), args[0], model.Status(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", c.Token, renderStatus(c.Status))
			return nil
		},
	}
}

func replyCmd(st stateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <complaint-id> <text...>",
		Short: "Reply to a complaint",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := st().client.Reply(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("Replied to"), c.Token)
			return nil
		},
	}
}

func analyticsCmd(st stateFunc) *cobra.Command {
	var rangeName string
	cmd := &cobra.Command{
		Use:   "analytics <box-id>",
		Short: "Show complaint and feedback analytics for a box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := st().client.Analytics(cmd.Context(), args[0], rangeName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s to %s (%s)", s.From, s.To, s.Range)))
			fmt.Fprintf(out, "Complaints: %d  (%s %d, %s %d, %s %d)\n", s.TotalComplaints,
				renderStatus(model.StatusReceived), s.Statuses.Received,
				renderStatus(model.StatusUnderReview), s.Statuses.UnderReview,
				renderStatus(model.StatusSolved), s.Statuses.Solved)
			rating := "-"
			if s.AvgRating != nil {
				rating = fmt.Sprintf("%.2f", *s.AvgRating)
			}
			fmt.Fprintf(out, "Feedback:   %d  (average rating %s)\n", s.TotalFeedbacks, rating)

			if len(s.Daily) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tCOMPLAINTS\tRECEIVED\tUNDER REVIEW\tSOLVED\tFEEDBACK\tRATING")
			for _, row := range s.Daily {
				avg := "-"
				if row.AvgRating != nil {
					avg = fmt.Sprintf("%.1f", *row.AvgRating)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n", row.Date.Format("2006-01-02"),
					row.TotalComplaints, row.ReceivedCount, row.UnderReviewCount, row.SolvedCount, row.TotalFeedbacks, avg)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&rangeName, "range", "", "week, month, quarter or year")
	return cmd
}
