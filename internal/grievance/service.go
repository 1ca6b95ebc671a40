// Package grievance is the application layer behind the HTTP routes and the
// email agent: it turns payloads into stored complaints, lists them and runs
// the scripted rejection call.
package grievance

import (
	"context"
	"strings"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
	"grievance/internal/metrics"
	"grievance/internal/notify"
	"grievance/internal/storage"
	"grievance/internal/telephony"
)

// maxIDAttempts bounds how often a synthesized id is redrawn on collision.
const maxIDAttempts = 5

// Caller places a call that plays an inline voice script.
type Caller interface {
	CallWithScript(ctx context.Context, to, twimlDoc string) (string, error)
}

// Service coordinates the store, the normalizer, notifications and telephony.
type Service struct {
	store      storage.Store
	norm       *complaint.Normalizer
	notifier   notify.Notifier
	caller     Caller
	callTarget string
	log        logging.Logger
}

// NewService wires the service. callTarget is who receives rejection calls
// (a phone number or "client:<identity>" for the browser phone).
func NewService(store storage.Store, norm *complaint.Normalizer, notifier notify.Notifier, caller Caller, callTarget string, log logging.Logger) *Service {
	if norm == nil {
		norm = complaint.NewNormalizer()
	}
	return &Service{
		store:      store,
		norm:       norm,
		notifier:   notifier,
		caller:     caller,
		callTarget: callTarget,
		log:        log.With(logging.F("component", "grievance")),
	}
}

// Register normalizes p and stores it without notifying anyone.
//
// A synthesized id that already exists is redrawn a few times; the check and
// the insert are one store operation. Caller-supplied ids are stored as given,
// duplicates included.
func (s *Service) Register(_ context.Context, p complaint.Partial, src complaint.Source) (complaint.Complaint, error) {
	c := s.norm.Normalize(p, src)
	if strings.TrimSpace(p.ID) != "" {
		if err := s.store.Insert(c); err != nil {
			return complaint.Complaint{}, err
		}
	} else {
		var err error
		if c, err = s.insertSynthesized(c, src); err != nil {
			return complaint.Complaint{}, err
		}
	}
	metrics.ComplaintsCreated.WithLabelValues(string(src)).Inc()
	s.log.Info("complaint registered",
		logging.F("id", c.ID),
		logging.F("source", string(src)),
		logging.F("dept", c.Dept))
	return c, nil
}

// insertSynthesized redraws c.ID until the store accepts it. The last draw
// is stored even if it collides.
func (s *Service) insertSynthesized(c complaint.Complaint, src complaint.Source) (complaint.Complaint, error) {
	for i := 1; i < maxIDAttempts; i++ {
		inserted, err := s.store.InsertIfAbsent(c)
		if err != nil || inserted {
			return c, err
		}
		s.log.Debug("synthesized id already taken, redrawing", logging.F("id", c.ID))
		c.ID = s.norm.NewID(src)
	}
	return c, s.store.Insert(c)
}

// Create registers a web or voice complaint and notifies before returning.
// Notification failures never fail the call.
func (s *Service) Create(ctx context.Context, p complaint.Partial, src complaint.Source) (complaint.Complaint, error) {
	c, err := s.Register(ctx, p, src)
	if err != nil {
		return complaint.Complaint{}, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, c)
	}
	return c, nil
}

// List returns every complaint, newest first.
func (s *Service) List() []complaint.Complaint {
	return s.store.List()
}

// Find returns one complaint.
func (s *Service) Find(id string) (complaint.Complaint, bool) {
	return s.store.FindByID(id)
}

// Reject calls the citizen line with the rejection script and marks the
// complaint Rejected once the call has been placed.
//
// Errors:
//   - NotFoundError: unknown id, no call is placed
//   - CollaboratorError: the call could not be placed, status is unchanged
func (s *Service) Reject(ctx context.Context, id, reason string) (string, error) {
	if _, ok := s.store.FindByID(id); !ok {
		return "", apperrors.NewNotFoundError(id)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Invalid details"
	}

	script, err := telephony.RejectionScript(id, reason)
	if err != nil {
		return "", apperrors.NewCollaboratorError("telephony", "render rejection script", err)
	}
	callSid, err := s.caller.CallWithScript(ctx, s.callTarget, script)
	if err != nil {
		s.log.Error("rejection call failed", logging.F("id", id), logging.Err(err))
		return "", err
	}

	if _, err := s.store.Mutate(id, func(c *complaint.Complaint) {
		c.Status = complaint.StatusRejected
	}); err != nil {
		return callSid, err
	}
	s.log.Info("complaint rejected",
		logging.F("id", id),
		logging.F("call_sid", callSid),
		logging.F("reason", reason))
	return callSid, nil
}
