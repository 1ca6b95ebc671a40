package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"grievance/internal/api"
	"grievance/internal/audit"
	"grievance/internal/complaint"
	"grievance/internal/config"
	"grievance/internal/evidence"
	"grievance/internal/gemini"
	"grievance/internal/grievance"
	"grievance/internal/health"
	"grievance/internal/intake"
	"grievance/internal/logging"
	"grievance/internal/mailbox"
	"grievance/internal/notify"
	"grievance/internal/server"
	"grievance/internal/storage"
	"grievance/internal/summary"
	"grievance/internal/telegram"
	"grievance/internal/telephony"
)

const staticDir = "public"

// app holds the wired components of one process.
type app struct {
	cfg *config.Config
	log logging.Logger

	store      storage.Store
	service    *grievance.Service
	gate       *evidence.Gate
	correlator *audit.Correlator
	phone      *telephony.Twilio
	officials  *telegram.Client
	monitor    *health.Monitor
	pool       *notify.Pool
	agent      *intake.Agent
	summary    *summary.Renderer
	uploadDir  string

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	httpClient := api.NewHTTPClient(cfg.HTTPTimeout)

	if cfg.DataDir != "" {
		p, err := storage.OpenPersistent(cfg.DataDir, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		a.store = p
		log.Info("complaint store opened", logging.F("dir", cfg.DataDir), logging.F("complaints", len(p.List())))
	} else {
		a.store = storage.NewMemory()
	}

	a.phone = telephony.New(telephony.Credentials{
		AccountSID:   cfg.TwilioAccountSID,
		AuthToken:    cfg.TwilioAuthToken,
		APIKeySID:    cfg.TwilioAPIKeySID,
		APIKeySecret: cfg.TwilioAPIKeySecret,
		FromNumber:   cfg.TwilioPhoneNumber,
	}, cfg.DebugMode, log)

	ai := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, httpClient, log)
	if ai != nil {
		ai.WithRateLimit(cfg.GeminiRPM)
	}

	// Optional channels stay nil interfaces when unconfigured.
	var mailer notify.Mailer
	if m := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, cfg.PublicURL); m != nil {
		mailer = m
	}
	var officials notify.Officials
	a.officials = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.PublicURL, httpClient, cfg.DebugMode, log)
	if a.officials != nil {
		officials = a.officials
	}
	dispatcher := notify.NewDispatcher(cfg.PublicURL, a.phone, mailer, officials, log)

	a.service = grievance.NewService(a.store, complaint.NewNormalizer(), dispatcher, a.phone, cfg.AuditCallTarget, log)

	blobs, err := a.blobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gate = evidence.NewGate(a.store, blobs, ai, log)

	if a.summary, err = summaryRenderer(cfg.SummaryFontFile); err != nil {
		a.Close()
		return nil, err
	}

	var registry audit.Registry = audit.NewMemoryRegistry()
	if cfg.RedisURL != "" {
		r, err := audit.NewRedisRegistry(ctx, cfg.RedisURL, cfg.AuditTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		registry = r
	}
	a.correlator = audit.NewCorrelator(registry, a.phone, cfg.PublicURL, cfg.AuditCallTarget, log)

	agentEnabled := cfg.EmailEnabled() && ai != nil
	a.monitor = health.NewMonitor(agentEnabled)
	if agentEnabled {
		// Notifications outlive the request-scoped ctx so shutdown can drain them
		a.pool = notify.NewPool(context.WithoutCancel(ctx), dispatcher, cfg.NotifyWorkers, log)
		var alerts intake.Alerter
		if a.officials != nil {
			alerts = a.officials
		}
		a.agent = intake.NewAgent(
			mailbox.NewIMAP(mailbox.Config{
				Host:        cfg.IMAPHost,
				Port:        cfg.IMAPPort,
				Username:    cfg.IMAPUser,
				Password:    cfg.IMAPPassword,
				AuthTimeout: cfg.IMAPAuthTimeout,
			}, log),
			ai, a.service, a.pool, alerts, a.monitor,
			intake.Options{
				Interval:   cfg.EmailPollInterval,
				StartDelay: cfg.EmailStartDelay,
				AlertAfter: 5,
			}, log)
	}
	return a, nil
}

func (a *app) blobStore(ctx context.Context) (evidence.BlobStore, error) {
	if a.cfg.GCSBucket != "" {
		s, err := evidence.NewGCSStore(ctx, a.cfg.GCSBucket, a.cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("evidence bucket: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.log.Info("evidence stored in GCS", logging.F("bucket", a.cfg.GCSBucket))
		return s, nil
	}
	s, err := evidence.NewLocalStore(a.cfg.UploadDir, a.cfg.PublicURL)
	if err != nil {
		return nil, err
	}
	a.uploadDir = s.Dir()
	return s, nil
}

func summaryRenderer(fontFile string) (*summary.Renderer, error) {
	if fontFile == "" {
		return summary.NewRenderer(nil)
	}
	ttf, err := os.ReadFile(fontFile)
	if err != nil {
		return nil, fmt.Errorf("summary font: %w", err)
	}
	r, err := summary.NewRenderer(ttf)
	if err != nil {
		return nil, fmt.Errorf("summary font %s: %w", fontFile, err)
	}
	return r, nil
}

func (a *app) router() *gin.Engine {
	if !a.cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	var officials server.PhotoSender
	if a.officials != nil {
		officials = a.officials
	}
	return server.NewRouter(server.Deps{
		Service:     a.service,
		Evidence:    a.gate,
		Audit:       a.correlator,
		Tokens:      a.phone,
		Officials:   officials,
		Monitor:     a.monitor,
		Credentials: a.cfg.Credentials(),
		Summary:     a.summary,
		StaticDir:   staticDir,
		UploadDir:   a.uploadDir,
		Log:         a.log,
	})
}

// Close drains pending notifications and releases stores in reverse order.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", logging.Err(err))
		}
	}
	a.closers = nil
}
