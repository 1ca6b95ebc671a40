// Package audit runs resolution-verification calls and correlates the
// citizen's keypress, delivered later by webhook, with the call that asked.
//
// Call lifecycle:
//
//	StartAudit ──► pending ──RecordResult──► "1" | "2" | ... | "no-input"
//
// A resolved call is terminal; later webhooks for it are ignored.
package audit

import (
	"context"
	"net/url"
	"strings"

	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
	"grievance/internal/metrics"
	"grievance/internal/telephony"
)

// Status values besides the recorded digit.
const (
	StatusPending = "pending"
	NoInput       = "no-input"
)

// Dialer places a call whose voice script is fetched from a URL.
type Dialer interface {
	CallWithURL(ctx context.Context, to, url string) (string, error)
}

// Correlator starts audit calls and tracks their results.
type Correlator struct {
	registry   Registry
	dialer     Dialer
	publicBase string
	target     string
	log        logging.Logger
}

// NewCorrelator wires a correlator. publicBase is the externally reachable
// base URL the provider calls back on; target is who gets dialed.
func NewCorrelator(registry Registry, dialer Dialer, publicBase, target string, log logging.Logger) *Correlator {
	return &Correlator{
		registry:   registry,
		dialer:     dialer,
		publicBase: strings.TrimRight(publicBase, "/"),
		target:     target,
		log:        log.With(logging.F("component", "audit")),
	}
}

// PromptURL is where the provider fetches the audit script.
func (c *Correlator) PromptURL(dept, loc, count string) string {
	q := url.Values{}
	q.Set("dept", dept)
	q.Set("loc", loc)
	q.Set("count", count)
	return c.publicBase + "/api/ivr/prompt?" + q.Encode()
}

// ResultURL is where the provider posts the keypress.
func (c *Correlator) ResultURL() string {
	return c.publicBase + "/api/ivr/result"
}

// PromptScript renders the single-keypress audit prompt.
func (c *Correlator) PromptScript(dept, loc, count string) (string, error) {
	return telephony.AuditPromptScript(dept, loc, count, c.ResultURL())
}

// StartAudit places the call and records it as pending.
func (c *Correlator) StartAudit(ctx context.Context, loc, dept, count string) (string, error) {
	c.log.Info("initiating audit call",
		logging.F("dept", dept),
		logging.F("loc", loc),
		logging.F("count", count))

	callID, err := c.dialer.CallWithURL(ctx, c.target, c.PromptURL(dept, loc, count))
	if err != nil {
		metrics.AuditCalls.WithLabelValues("failed").Inc()
		return "", err
	}
	if err := c.registry.Begin(ctx, callID); err != nil {
		// The call is already ringing; the result webhook can still land.
		c.log.Error("failed to record pending audit", logging.F("call_sid", callID), logging.Err(err))
	}
	metrics.AuditCalls.WithLabelValues("started").Inc()
	return callID, nil
}

// RecordResult stores the keypress for callID. An empty digit is stored as
// NoInput. Results for already resolved calls are ignored.
func (c *Correlator) RecordResult(ctx context.Context, callID, digit string) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return apperrors.NewNotFoundError("")
	}
	digit = strings.TrimSpace(digit)
	if digit == "" {
		digit = NoInput
	}

	stored, err := c.registry.Resolve(ctx, callID, digit)
	if err != nil {
		return err
	}
	if !stored {
		c.log.Debug("audit already resolved, result ignored", logging.F("call_sid", callID), logging.F("digit", digit))
		return nil
	}
	metrics.AuditCalls.WithLabelValues("resolved").Inc()
	c.log.Info("audit result recorded", logging.F("call_sid", callID), logging.F("digit", digit))
	return nil
}

// CheckStatus returns the recorded digit, NoInput, or StatusPending. Unknown
// ids and registry failures both read as pending.
func (c *Correlator) CheckStatus(ctx context.Context, callID string) string {
	s, ok, err := c.registry.Status(ctx, callID)
	if err != nil {
		c.log.Warn("audit status lookup failed", logging.F("call_sid", callID), logging.Err(err))
		return StatusPending
	}
	if !ok {
		return StatusPending
	}
	return s
}
