package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/authwire/internal/authapi"
	"github.com/tonimelisma/authwire/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; the password is read from stdin",
		RunE:  runLogin,
	}

	cmd.Flags().String("email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in; the password is read from stdin",
		RunE:  runRegister,
	}

	cmd.Flags().String("email", "", "account email (required)")
	cmd.Flags().String("name", "", "display name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the saved session",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in identity",
		RunE:  runWhoami,
	}
}

// withStack builds the client stack for one command and closes it after fn.
func withStack(cmd *cobra.Command, route string, fn func(ctx context.Context, s *stack) error) error {
	logger := buildLogger()

	parent, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	ctx := shutdownContext(parent, logger)

	nav := newConsoleNavigator(cmd.ErrOrStderr())
	nav.route = route

	s, err := buildStack(ctx, resolvedCfg, logger, nav)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password on stdin")
	}

	return pw, nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")

	pw, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withStack(cmd, resolvedCfg.Session.LoginRoute, func(ctx context.Context, s *stack) error {
		sess, err := s.auth.Login(ctx, authapi.Credentials{Email: email, Password: pw})
		if err != nil {
			return err
		}

		statusf("Signed in as %s.\n", displayIdentity(sess))

		return nil
	})
}

func runRegister(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")

	pw, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withStack(cmd, "/register", func(ctx context.Context, s *stack) error {
		sess, err := s.auth.Register(ctx, authapi.Credentials{Email: email, Password: pw, Name: name})
		if err != nil {
			return err
		}

		statusf("Account created; signed in as %s.\n", displayIdentity(sess))

		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	return withStack(cmd, resolvedCfg.Session.LoginRoute, func(ctx context.Context, s *stack) error {
		if err := s.auth.Logout(ctx); err != nil {
			return err
		}

		statusf("Signed out.\n")

		return nil
	})
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Subject string    `json:"subject,omitempty"`
	Email   string    `json:"email,omitempty"`
	Name    string    `json:"name,omitempty"`
	Expiry  time.Time `json:"expiry,omitzero"`
	Expired bool      `json:"expired"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	return withStack(cmd, "", func(ctx context.Context, s *stack) error {
		sess, err := s.sessions.Current(ctx)
		if err != nil {
			return err
		}

		out := whoamiOutput{
			Subject: sess.Identity.Subject,
			Email:   sess.Identity.Email,
			Name:    sess.Identity.Name,
			Expiry:  sess.Expiry(),
			Expired: !sess.Expiry().IsZero() && sess.Expiry().Before(time.Now()),
		}

		w := cmd.OutOrStdout()

		if flagJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")

			return enc.Encode(out)
		}

		fmt.Fprintf(w, "Signed in as %s\n", displayIdentity(sess))

		if !out.Expiry.IsZero() {
			state := "valid"
			if out.Expired {
				state = "expired, will refresh on next call"
			}

			fmt.Fprintf(w, "Access token expires %s (%s)\n", out.Expiry.Local().Format(time.RFC1123), state)
		}

		return nil
	})
}

func displayIdentity(s *session.Session) string {
	id := s.Identity

	switch {
	case id.Name != "" && id.Email != "":
		return fmt.Sprintf("%s <%s>", id.Name, id.Email)
	case id.Email != "":
		return id.Email
	case id.Subject != "":
		return id.Subject
	default:
		return "an unidentified user"
	}
}
