// Package intake runs the email agent: a periodic loop that turns unseen
// citizen emails into complaints.
//
// One cycle:
//  1. Fetch every UNSEEN message (fetching marks it seen)
//  2. Parse sender, subject and plain text
//  3. Extract name, phone, type, location and description with the AI
//  4. Register the complaint and hand it to the notification pool
//
// A failure on one message never stops the others. A mailbox failure aborts
// the cycle; the next tick simply tries again.
package intake

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
	"grievance/internal/gemini"
	"grievance/internal/logging"
	"grievance/internal/mailbox"
	"grievance/internal/metrics"
)

// Defaults for Options.
const (
	DefaultInterval   = 30 * time.Second
	DefaultStartDelay = 5 * time.Second
	MinBodyRunes      = 10
	DefaultType       = "General Grievance"
)

var tracer = otel.Tracer("grievance/intake")

// Mailbox yields unseen messages.
type Mailbox interface {
	FetchUnseen(ctx context.Context) ([]mailbox.Raw, error)
}

// Extractor pulls structured complaint fields out of free text.
type Extractor interface {
	Extract(ctx context.Context, text string) (gemini.Extraction, error)
}

// Registrar stores a complaint.
type Registrar interface {
	Register(ctx context.Context, p complaint.Partial, src complaint.Source) (complaint.Complaint, error)
}

// Handoff queues a stored complaint for notification.
type Handoff interface {
	Submit(c complaint.Complaint) bool
}

// Alerter tells officials that the agent keeps failing.
type Alerter interface {
	SendAlert(ctx context.Context, title, detail string, attempts int) error
}

// CycleRecorder receives the outcome of every cycle.
type CycleRecorder interface {
	RecordCycle(created int, err error)
}

// Options tune the loop. Zero values fall back to the defaults.
type Options struct {
	Interval   time.Duration
	StartDelay time.Duration
	// AlertAfter is the number of consecutive failed cycles that triggers an
	// alert. Zero disables alerts.
	AlertAfter int
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Fetched  int           `json:"fetched"`
	Created  []string      `json:"created"`
	Skipped  int           `json:"skipped"`
	Dropped  int           `json:"dropped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Agent is the email intake loop.
type Agent struct {
	mailbox  Mailbox
	ai       Extractor
	registry Registrar
	handoff  Handoff
	alerts   Alerter
	recorder CycleRecorder
	opts     Options
	log      logging.Logger

	failures int
}

// NewAgent wires the agent. handoff, alerts and recorder may be nil.
func NewAgent(mb Mailbox, ai Extractor, registry Registrar, handoff Handoff, alerts Alerter, recorder CycleRecorder, opts Options, log logging.Logger) *Agent {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 0
	}
	return &Agent{
		mailbox:  mb,
		ai:       ai,
		registry: registry,
		handoff:  handoff,
		alerts:   alerts,
		recorder: recorder,
		opts:     opts,
		log:      log.With(logging.F("component", "email_agent")),
	}
}

// Run fires one cycle after the start delay and then one per interval until
// ctx is cancelled. Cycles never overlap.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("email agent started",
		logging.F("interval", a.opts.Interval.String()),
		logging.F("start_delay", a.opts.StartDelay.String()))

	delay := time.NewTimer(a.opts.StartDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-delay.C:
	}

	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()
	for {
		_, _ = a.Tick(ctx)
		select {
		case <-ctx.Done():
			a.log.Info("email agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one cycle. The returned error is the connection-level
// failure, if any; per-message failures only show up in the report.
func (a *Agent) Tick(ctx context.Context) (report CycleReport, err error) {
	ctx, span := tracer.Start(ctx, "intake.Tick")
	defer span.End()

	start := time.Now()
	report.Created = []string{}
	defer func() {
		report.Duration = time.Since(start)
		metrics.EmailCycleDuration.Observe(report.Duration.Seconds())
	}()

	// A fetch that breaks off midway still hands back the messages it read.
	// They are already flagged seen, so they are processed before the cycle
	// is reported as failed.
	raws, fetchErr := a.mailbox.FetchUnseen(ctx)
	report.Fetched = len(raws)
	span.SetAttributes(attribute.Int("email.fetched", len(raws)))

	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		c, outcome := a.process(ctx, raw)
		metrics.EmailMessages.WithLabelValues(outcome).Inc()
		switch outcome {
		case "created":
			report.Created = append(report.Created, c.ID)
		case "skipped":
			report.Skipped++
		case "dropped":
			report.Dropped++
		default:
			report.Failed++
		}
	}

	if fetchErr != nil {
		err = fetchErr
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		a.cycleFailed(ctx, len(report.Created), err)
		return report, err
	}

	a.cycleSucceeded(len(report.Created))
	if report.Fetched > 0 {
		a.log.Info("email cycle finished",
			logging.F("fetched", report.Fetched),
			logging.F("created", len(report.Created)),
			logging.F("skipped", report.Skipped),
			logging.F("dropped", report.Dropped),
			logging.F("failed", report.Failed))
	}
	return report, nil
}

// process handles one message and reports its outcome label.
func (a *Agent) process(ctx context.Context, raw mailbox.Raw) (complaint.Complaint, string) {
	log := a.log.With(logging.F("uid", raw.UID))

	msg, err := mailbox.Parse(raw)
	if err != nil {
		log.Warn("unparseable email skipped", logging.Err(err))
		return complaint.Complaint{}, "skipped"
	}
	if utf8.RuneCountInString(strings.TrimSpace(msg.Text)) < MinBodyRunes {
		log.Debug("email body too short, skipped", logging.F("from", msg.From))
		return complaint.Complaint{}, "skipped"
	}

	ext, err := a.ai.Extract(ctx, msg.Text)
	if err != nil {
		if apperrors.IsMalformedExtraction(err) {
			log.Warn("AI returned malformed JSON, email dropped", logging.F("from", msg.From), logging.Err(err))
			return complaint.Complaint{}, "dropped"
		}
		log.Error("extraction failed", logging.F("from", msg.From), logging.Err(err))
		return complaint.Complaint{}, "failed"
	}

	c, err := a.registry.Register(ctx, toPartial(msg, ext), complaint.SourceEmail)
	if err != nil {
		log.Error("failed to store email complaint", logging.Err(err))
		return complaint.Complaint{}, "failed"
	}
	log.Info("email converted to complaint", logging.F("id", c.ID), logging.F("from", msg.From))

	if a.handoff != nil {
		a.handoff.Submit(c)
	}
	return c, "created"
}

// toPartial maps an extraction onto an intake payload. The sender address
// becomes the complaint email; the department is left to the classifier.
func toPartial(msg mailbox.Message, ext gemini.Extraction) complaint.Partial {
	typ := strings.TrimSpace(ext.Type)
	if typ == "" {
		typ = DefaultType
	}
	phone := strings.TrimSpace(ext.Phone)
	if phone == "" {
		phone = complaint.UnprovidedPhone
	}
	name := strings.TrimSpace(ext.Name)
	if name == "" {
		name = msg.FromName
	}
	if name == "" {
		name = msg.From
	}
	desc := strings.TrimSpace(ext.Desc)
	if desc == "" {
		desc = strings.TrimSpace(msg.Text)
	}

	return complaint.Partial{
		Type:    typ,
		Subject: msg.Subject,
		Desc:    desc + " (Via Email: " + name + ")",
		Loc:     strings.TrimSpace(ext.Loc),
		Phone:   phone,
		Dept:    complaint.AutoAssigned,
		Email:   msg.From,
	}
}

func (a *Agent) cycleFailed(ctx context.Context, created int, err error) {
	metrics.EmailCycles.WithLabelValues("error").Inc()
	a.failures++
	a.log.Warn("email cycle failed, retrying next tick",
		logging.F("consecutive_failures", a.failures),
		logging.Err(err))
	if a.recorder != nil {
		a.recorder.RecordCycle(created, err)
	}
	if a.alerts != nil && a.opts.AlertAfter > 0 && a.failures == a.opts.AlertAfter {
		if alertErr := a.alerts.SendAlert(ctx, "Email agent failing", err.Error(), a.failures); alertErr != nil {
			a.log.Warn("failed to send alert", logging.Err(alertErr))
		}
	}
}

func (a *Agent) cycleSucceeded(created int) {
	metrics.EmailCycles.WithLabelValues("ok").Inc()
	a.failures = 0
	if a.recorder != nil {
		a.recorder.RecordCycle(created, nil)
	}
}
