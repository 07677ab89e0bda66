package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aification/sessionkit"
	"github.com/aification/sessionkit/identity"
	"github.com/aification/sessionkit/storage"
	"github.com/aification/sessionkit/token"
)

type credentialFlags struct {
	email         string
	password      string
	passwordStdin bool
}

func (c *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Account email")
	cmd.Flags().StringVar(&c.password, "password", "", "Account password")
	cmd.Flags().BoolVar(&c.passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (c *credentialFlags) resolve(in io.Reader) (string, error) {
	if c.passwordStdin {
		return readSecret(in)
	}
	return c.password, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := creds.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			done, err := a.open(cmd.OutOrStdout(), openOptions{})
			if err != nil {
				return err
			}
			defer done()

			snap, err := a.flows.Login(cmd.Context(), creds.email, password)
			if err != nil {
				return describeError(err)
			}
			printUser(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account; sign in afterwards with login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := creds.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			done, err := a.open(cmd.OutOrStdout(), openOptions{})
			if err != nil {
				return err
			}
			defer done()

			msg, err := a.flows.Signup(cmd.Context(), creds.email, password)
			if err != nil {
				return describeError(err)
			}
			if msg == "" {
				msg = "Account created."
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Sign in with: aification-session login --email %s\n", msg, creds.email)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func newGoogleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "google [credential]",
		Short: "Sign in with an identity-provider credential",
		Long:  "google exchanges an identity-provider credential for a session. Without an argument it mounts the identity button configured under identity: and reads the credential from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := a.open(cmd.OutOrStdout(), openOptions{})
			if err != nil {
				return err
			}
			defer done()

			if len(args) == 1 {
				snap, err := a.flows.IdentityCredential(cmd.Context(), args[0])
				if err != nil {
					return describeError(err)
				}
				printUser(cmd.OutOrStdout(), snap)
				return nil
			}

			var (
				snap     sessionkit.Snapshot
				exchange error
				answered bool
			)
			prompt := &promptProvider{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			loader := identity.NewLoader(a.cfg.Identity.ClientID, prompt.probe, a.cfg.Identity.PollInterval, a.cfg.Identity.MaxPolls)
			onCredential := a.flows.CredentialHandler(cmd.Context(), func(s sessionkit.Snapshot, err error) {
				snap, exchange, answered = s, err, true
			})

			status := loader.Mount(cmd.Context(), "terminal", identity.SignInButton(), onCredential)
			if status.State != identity.StateReady {
				if status.Message == "" {
					return fmt.Errorf("identity provider %s", status.State)
				}
				return errors.New(status.Message)
			}
			if !answered {
				return errors.New("no credential received")
			}
			if exchange != nil {
				return describeError(exchange)
			}
			printUser(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	var claims bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Hydrate the stored token and print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			done, err := a.open(cmd.OutOrStdout(), openOptions{})
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			snap := a.store.Hydrate(cmd.Context())
			printUser(out, snap)
			if claims && snap.SignedIn() {
				printClaims(cmd, a.storage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&claims, "claims", false, "Also print the unverified claims of a JWT token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			done, err := a.open(cmd.OutOrStdout(), openOptions{})
			if err != nil {
				return err
			}
			defer done()

			if err := a.store.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Open the Resume Builder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := sessionkit.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			return sessionkit.OpenResumeBuilder(printNavigator{out: cmd.OutOrStdout()}, cfg.Navigation)
		},
	}
}

func printUser(out io.Writer, snap sessionkit.Snapshot) {
	if !snap.SignedIn() {
		fmt.Fprintln(out, "not signed in")
		return
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", snap.User.Email, snap.User.AuthMethod)
}

func printClaims(cmd *cobra.Command, st storage.Storage) {
	out := cmd.OutOrStdout()
	raw, ok, err := st.Get(cmd.Context(), storage.CanonicalTokenKey)
	if err != nil || !ok {
		raw, ok, err = st.Get(cmd.Context(), storage.LegacyTokenKey)
	}
	if err != nil || !ok {
		return
	}
	c, err := token.Inspect(raw)
	if errors.Is(err, token.ErrNotJWT) {
		fmt.Fprintln(out, "token: opaque")
		return
	}
	fmt.Fprintf(out, "subject: %s\n", c.Subject)
	if !c.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "expires: %s\n", c.ExpiresAt.UTC().Format(time.RFC3339))
	}
}
