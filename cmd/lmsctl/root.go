package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	lmsgo "github.com/scibono/lmsclient/clients/go"
	"github.com/scibono/lmsclient/internal/config"
	"github.com/scibono/lmsclient/internal/logger"
	"github.com/scibono/lmsclient/sessionstore"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg     *config.Client
	profile string
	log     zerolog.Logger
	client  *lmsgo.Client
	closer  io.Closer
}

// newRootCmd builds the command tree. The returned app must be closed once
// the command has run, whether or not it failed.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	var (
		baseURL     string
		debug       bool
		timeout     time.Duration
		sessionDB   string
		sessionFile string
	)

	rootCmd := &cobra.Command{
		Use:           "lmsctl",
		Short:         "CLI client for the Sci-Bono LMS REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			if flags.Changed("debug") {
				cfg.Debug = debug
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if flags.Changed("session-db") {
				cfg.SessionDB = sessionDB
			}
			if flags.Changed("session-file") {
				cfg.SessionFile = sessionFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			return a.open(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURL, "base-url", "", "LMS API base URL (env LMS_BASE_URL)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging (env LMS_DEBUG)")
	pf.DurationVar(&timeout, "timeout", lmsgo.DefaultTimeout, "Per-request timeout (env LMS_TIMEOUT)")
	pf.StringVar(&sessionDB, "session-db", "", "Keep the session in this sqlite database instead of a file (env LMS_SESSION_DB)")
	pf.StringVar(&sessionFile, "session-file", "", "Session file path (env LMS_SESSION_FILE)")
	pf.StringVar(&a.profile, "profile", sessionstore.DefaultName, "Session name inside --session-db")

	rootCmd.AddCommand(newLoginCmd(a), newLogoutCmd(a), newStatusCmd(a), newUsersCmd(a))
	return rootCmd, a
}

// Close releases the session database opened for --session-db.
func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// open builds the client and restores the stored session.
func (a *app) open(cmd *cobra.Command) error {
	a.log = logger.NewConsole(a.cfg.Debug)

	var store lmsgo.SessionStore
	if a.cfg.SessionDB != "" {
		s, err := sessionstore.Open(a.cfg.SessionDB, a.profile)
		if err != nil {
			return err
		}
		store, a.closer = s, s
	} else {
		path, err := a.cfg.SessionPath()
		if err != nil {
			return err
		}
		store = lmsgo.NewFileSessionStore(path)
	}

	a.client = lmsgo.NewClient(a.cfg.BaseURL,
		lmsgo.WithTimeout(a.cfg.Timeout),
		lmsgo.WithUserAgent(a.cfg.UserAgent),
		lmsgo.WithLogger(a.log),
		lmsgo.WithSessionStore(store),
	)
	return a.client.Initialize(cmd.Context())
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResponse(cmd *cobra.Command, resp *lmsgo.Response) error {
	return printJSON(cmd.OutOrStdout(), resp.Body)
}
