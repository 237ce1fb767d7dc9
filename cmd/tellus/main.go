// Command tellus is a terminal client for TellUs complaint boxes.
//
// Submitters open a box by its share token, submit complaints and follow
// them by tracking token. Tokens are recorded in a local ledger under
// TELLUS_HOME so "tellus mine" can list them later. Admins sign in to manage
// their boxes.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tellus/tellus/internal/client"
	"github.com/tellus/tellus/internal/ledger"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+describeError(err))
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. hc overrides the HTTP client, for tests.
func newRootCmd(hc *http.Client) *cobra.Command {
	var (
		apiURL string
		home   string
		st     *state
	)

	root := &cobra.Command{
		Use:   "tellus",
		Short: "Anonymous complaint boxes from the terminal",
		Long: `tellus talks to a TellUs server.

Submitters need no account: open a box with its share token, submit a
complaint, and keep the CPL- tracking token that is printed. Submitted tokens
are also recorded locally, so "tellus mine <box>" lists them again.

Admins sign up or log in once; the session is kept under TELLUS_HOME.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			st, err = openState(cmd.Context(), apiURL, home, hc)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st == nil {
				return nil
			}
			return st.Close()
		},
	}

	root.PersistentFlags().StringVar(&apiURL, "api", envOr("TELLUS_API_URL", "http://localhost:8080"), "TellUs server URL (TELLUS_API_URL)")
	root.PersistentFlags().StringVar(&home, "home", envOr("TELLUS_HOME", defaultHome()), "local state directory (TELLUS_HOME)")

	get := func() *state { return st }
	root.AddCommand(
		categoriesCmd(get),
		boxCmd(get),
		unlockCmd(get),
		submitCmd(get),
		trackCmd(get),
		mineCmd(get),
		feedbackCmd(get),
		signupCmd(get),
		loginCmd(get),
		logoutCmd(get),
		boxesCmd(get),
		createBoxCmd(get),
		complaintsCmd(get),
		setStatusCmd(get),
		replyCmd(get),
		analyticsCmd(get),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// describeError renders err as one line.
func describeError(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrNoSession):
		return "not signed in; run \"tellus login\" first"
	case errors.Is(err, ledger.ErrCorrupt):
		return err.Error() + "; run \"tellus mine --reset <box>\" to start a new list"
	case errors.As(err, &apiErr) && apiErr.Code == "ACCESS_REQUIRED":
		return apiErr.Message + "; run \"tellus unlock <box>\" first"
	case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
		return fmt.Sprintf("%s; retry in %s", apiErr.Message, apiErr.RetryAfter)
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}
