// Package evidence gates photo uploads through an AI validity check.
//
// Flow for one upload:
//  1. Reject unknown complaint ids before anything is stored
//  2. Persist the image and build its public URL
//  3. Ask the classifier whether the photo shows a civic issue
//  4. Accept, reject as spam (the stored image is deleted again), or fail
//     open when the AI is unavailable
package evidence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
	"grievance/internal/metrics"
	"grievance/internal/storage"
)

// WarningAICheckSkipped is reported when the upload was accepted without an AI verdict.
const WarningAICheckSkipped = "AI Check Skipped"

var tracer = otel.Tracer("grievance/evidence")

// Classifier answers the civic-issue image question with free text.
type Classifier interface {
	ClassifyImage(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Submission is one evidence upload.
type Submission struct {
	ID          string
	Filename    string // original client file name, only its extension is kept
	ContentType string
	Data        []byte
	Lat         complaint.Coord // optional GPS fix of the photo
	Long        complaint.Coord
}

// Result is what the caller reports back to the citizen.
type Result struct {
	Accepted bool
	URL      string
	Spam     bool
	Warning  string
}

// Gate runs the evidence validation flow.
type Gate struct {
	store storage.Store
	blobs BlobStore
	ai    Classifier
	log   logging.Logger
	now   func() time.Time
}

// NewGate wires the gate to its collaborators.
func NewGate(store storage.Store, blobs BlobStore, ai Classifier, log logging.Logger) *Gate {
	return &Gate{store: store, blobs: blobs, ai: ai, log: log, now: time.Now}
}

// Submit validates one upload.
//
// Errors:
//   - NotFoundError: unknown id, nothing was stored
//   - ValidationRejectedError: the AI judged the photo spam; Result.Spam is set
//   - CollaboratorError: the image could not be persisted
func (g *Gate) Submit(ctx context.Context, sub Submission) (Result, error) {
	ctx, span := tracer.Start(ctx, "evidence.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", sub.ID))

	log := g.log.WithContext(ctx).With(logging.F("id", sub.ID))

	if _, ok := g.store.FindByID(sub.ID); !ok {
		span.SetStatus(codes.Error, "complaint not found")
		return Result{}, apperrors.NewNotFoundError(sub.ID)
	}

	name := fmt.Sprintf("%s-%d%s", sub.ID, g.now().UnixMilli(), strings.ToLower(filepath.Ext(sub.Filename)))
	url, err := g.blobs.Put(ctx, name, sub.ContentType, sub.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blob write failed")
		return Result{}, apperrors.NewCollaboratorError("blob store", "save evidence", err)
	}

	log.Info("verifying evidence image", logging.F("url", url))
	text, aiErr := g.ai.ClassifyImage(ctx, sub.Data, sub.ContentType)
	verdict := ParseVerdict(text)
	span.SetAttributes(attribute.String("evidence.verdict", verdict.String()))

	switch {
	case aiErr == nil && verdict == Accept:
		if _, err := g.store.Mutate(sub.ID, func(c *complaint.Complaint) {
			c.Img = url
			c.Status = complaint.StatusPending
			if sub.Lat != "" {
				c.Lat = sub.Lat
			}
			if sub.Long != "" {
				c.Long = sub.Long
			}
		}); err != nil {
			return Result{}, err
		}
		metrics.EvidenceVerdicts.WithLabelValues("accept").Inc()
		log.Info("evidence accepted", logging.F("verdict", text))
		return Result{Accepted: true, URL: url}, nil

	case aiErr == nil && verdict == Reject:
		metrics.EvidenceVerdicts.WithLabelValues("reject").Inc()
		log.Warn("evidence blocked by AI", logging.F("verdict", text))
		if err := g.blobs.Delete(ctx, name); err != nil {
			log.Warn("failed to delete rejected image", logging.F("url", url), logging.Err(err))
		}
		return Result{Spam: true}, apperrors.NewValidationRejectedError(sub.ID, text)

	default:
		if aiErr != nil {
			log.Warn("AI check failed, accepting evidence unverified", logging.Err(aiErr))
		} else {
			log.Warn("AI verdict not understood, accepting evidence unverified", logging.F("verdict", text))
		}
		if _, err := g.store.Mutate(sub.ID, func(c *complaint.Complaint) {
			c.Img = url
			c.Status = complaint.StatusPending
		}); err != nil {
			return Result{}, err
		}
		metrics.EvidenceVerdicts.WithLabelValues("fail_open").Inc()
		return Result{Accepted: true, URL: url, Warning: WarningAICheckSkipped}, nil
	}
}
