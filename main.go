// Package main is the grievance backend entry point.
//
// Commands:
//
//	grievance serve        HTTP API plus the email agent
//	grievance poll-once    one email cycle, report printed as JSON
//	grievance classify     route free text to a department
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grievance/internal/complaint"
	"grievance/internal/config"
	"grievance/internal/logging"
)

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "grievance",
	Short: "Civic grievance intake backend",
	Long: `grievance accepts complaints from the web dashboard, the voice assistant and
a monitored mailbox, routes them to a department, verifies photo evidence,
notifies citizens and officials, and runs audit calls.

Configuration comes from the environment (or a .env file); see PORT,
PUBLIC_URL, TWILIO_*, GEMINI_*, IMAP_*, SMTP_*, TELEGRAM_* and friends.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the email agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var pollOnceCmd = &cobra.Command{
	Use:   "poll-once",
	Short: "Run a single email intake cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPollOnce(cmd.Context())
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show which department a complaint text is routed to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), complaint.Classify("", "", strings.Join(args, " ")))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, pollOnceCmd, classifyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		// The logger is not configured yet
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return nil, nil, err
	}
	log := logging.New(&logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: "grievance",
		JSONFormat:  cfg.LogJSON,
		Output:      os.Stderr,
	})
	logCredentials(cfg, log)
	return cfg, log, nil
}

func logCredentials(cfg *config.Config, log logging.Logger) {
	r := cfg.Credentials()
	log.Info("twilio credentials loaded",
		logging.F("account_sid", config.Masked(cfg.TwilioAccountSID)),
		logging.F("api_key_sid", config.Masked(cfg.TwilioAPIKeySID)),
		logging.F("auth_token", r.HasAuthToken),
		logging.F("api_secret", r.HasAPISecret),
		logging.F("phone", r.HasTwilioPhone))
	if !r.HasGeminiKey {
		log.Warn("GEMINI_API_KEY missing: evidence checks fail open, email extraction disabled")
	}
	if !r.HasMailbox {
		log.Info("IMAP credentials missing: email agent disabled")
	}
	if cfg.DebugMode {
		log.Warn("DEBUG_MODE on: calls and SMS are logged, not sent")
	}
}

func runServe(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", logging.Err(err))
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", logging.F("port", cfg.Port), logging.F("public_url", cfg.PublicURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.agent != nil {
		g.Go(func() error {
			return a.agent.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		log.Error("server stopped with error", logging.Err(err))
	}
	return err
}

func runPollOnce(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.agent == nil {
		return errors.New("email agent not configured: set IMAP_USER, IMAP_PASSWORD and GEMINI_API_KEY")
	}
	report, err := a.agent.Tick(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
