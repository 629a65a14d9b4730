package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/neotutor/internal/output"
	"github.com/joescharf/neotutor/internal/session"
)

var (
	authName     string
	authPassword string
	authGitHub   string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign up, and inspect the session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with name and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLoginRun(cmd)
	},
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authSignupRun(cmd)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on the server and forget it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLogoutRun(cmd.Context())
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Verify the session with the server and show the user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authWhoamiRun(cmd.Context())
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the locally remembered session without contacting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authStatusRun(cmd.Context())
	},
}

func init() {
	authLoginCmd.Flags().StringVar(&authName, "name", "", "Account name")
	authLoginCmd.Flags().StringVar(&authPassword, "password", "", "Password (prompted when omitted)")

	authSignupCmd.Flags().StringVar(&authName, "name", "", "Account name")
	authSignupCmd.Flags().StringVar(&authGitHub, "github", "", "GitHub username")
	authSignupCmd.Flags().StringVar(&authPassword, "password", "", "Password (prompted when omitted)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func authLoginRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	name, err := valueOrPrompt(cmd.InOrStdin(), authName, "Name", false)
	if err != nil {
		return err
	}
	password, err := valueOrPrompt(cmd.InOrStdin(), authPassword, "Password", true)
	if err != nil {
		return err
	}

	m, err := getSession(ctx)
	if err != nil {
		return err
	}
	st, err := m.SignIn(ctx, name, password)
	if err != nil {
		return err
	}
	return reportSignedIn(st)
}

func authSignupRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	in := cmd.InOrStdin()
	name, err := valueOrPrompt(in, authName, "Name", false)
	if err != nil {
		return err
	}
	gh, err := valueOrPrompt(in, authGitHub, "GitHub username", false)
	if err != nil {
		return err
	}
	password, err := valueOrPrompt(in, authPassword, "Password", true)
	if err != nil {
		return err
	}

	m, err := getSession(ctx)
	if err != nil {
		return err
	}
	st, err := m.SignUp(ctx, name, gh, password)
	if err != nil {
		return err
	}
	return reportSignedIn(st)
}

// reportSignedIn prints the outcome of a credential exchange. The exchange
// can succeed while the profile fetch fails, which leaves the user signed out.
func reportSignedIn(st session.State) error {
	if !session.CanAccess(st) {
		return fmt.Errorf("signed in, but the server did not confirm the session")
	}
	ui.Success("Signed in as %s", output.Cyan(st.User.Name))
	return nil
}

func authLogoutRun(ctx context.Context) error {
	if dryRun {
		ui.DryRunMsg("Would sign out and clear the local session")
		return nil
	}
	m, err := getSession(ctx)
	if err != nil {
		return err
	}
	if err := m.Logout(ctx); err != nil {
		ui.Warning("Server sign-out failed: %v", err)
	}
	ui.Success("Signed out")
	return nil
}

func authWhoamiRun(ctx context.Context) error {
	m, err := getSession(ctx)
	if err != nil {
		return err
	}
	st := m.Reconcile(ctx)
	if !session.CanAccess(st) {
		return fmt.Errorf("%w: run 'neotutor auth login'", session.ErrAuthRequired)
	}
	printUser(st)
	return nil
}

func authStatusRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	st := session.New(nil, s, session.WithLogger(logger)).Peek(ctx)
	fmt.Fprintf(ui.Out, "Session: %s\n", output.AuthColor(st.Authenticated))
	if st.User != nil {
		printUser(st)
	}
	return nil
}

func printUser(st session.State) {
	table := ui.Table([]string{"Name", "GitHub", "Email"})
	table.Append([]string{st.User.Name, st.User.GitHubUsername, st.User.Email})
	_ = table.Render()
}
