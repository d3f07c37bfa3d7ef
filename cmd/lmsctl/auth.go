package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptCredentials asks for whatever was not given on the command line.
// The password is read without echo when stdin is a terminal.
func promptCredentials(in io.Reader, out io.Writer, identifier, password string) (string, string, error) {
	reader := bufio.NewReader(in)

	if identifier == "" {
		fmt.Fprint(out, "Email or username: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read identifier: %w", err)
		}
		identifier = strings.TrimSpace(line)
		if identifier == "" {
			return "", "", fmt.Errorf("identifier cannot be empty")
		}
	}

	if password == "" {
		fmt.Fprint(out, "Password: ")
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			passwordBytes, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = string(passwordBytes)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return "", "", fmt.Errorf("password cannot be empty")
		}
	}

	return identifier, password, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login [EMAIL_OR_USERNAME]",
		Short: "Log in and store the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := ""
			if len(args) == 1 {
				identifier = args[0]
			}
			identifier, secret, err := promptCredentials(cmd.InOrStdin(), cmd.ErrOrStderr(), identifier, password)
			if err != nil {
				return err
			}

			session, err := a.client.Login(cmd.Context(), identifier, secret)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"authenticated": true,
				"user":          session.User,
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"authenticated": false})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := map[string]interface{}{
				"base_url":      a.client.GetBaseURL(),
				"authenticated": a.client.IsAuthenticated(),
			}
			if session := a.client.Session(); session != nil && session.User != nil {
				status["user"] = session.User
			}
			if exp, ok := a.client.TokenExpiresAt(); ok {
				status["token_expires_at"] = exp.UTC().Format(time.RFC3339)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}
