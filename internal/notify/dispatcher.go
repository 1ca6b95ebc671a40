// Package notify fans a newly stored complaint out to the citizen (SMS,
// email) and to officials (Telegram).
//
// Every channel is independent and best-effort: a failure is logged and
// counted, never returned, and never stops the other channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"grievance/internal/complaint"
	"grievance/internal/logging"
	"grievance/internal/metrics"
)

// SMSSender delivers a text message to a normalized phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Mailer sends the confirmation email for a complaint.
type Mailer interface {
	SendConfirmation(ctx context.Context, c complaint.Complaint) error
}

// Officials receives a broadcast for every new complaint.
type Officials interface {
	SendComplaint(ctx context.Context, c complaint.Complaint) error
}

// Dispatcher sends notifications for new complaints. Nil channels are skipped.
type Dispatcher struct {
	publicBase string
	sms        SMSSender
	mail       Mailer
	officials  Officials
	log        logging.Logger
}

// NewDispatcher wires the available channels. Pass nil for a channel that is
// not configured.
func NewDispatcher(publicBase string, sms SMSSender, mail Mailer, officials Officials, log logging.Logger) *Dispatcher {
	return &Dispatcher{
		publicBase: strings.TrimRight(publicBase, "/"),
		sms:        sms,
		mail:       mail,
		officials:  officials,
		log:        log.With(logging.F("component", "notify")),
	}
}

// UploadLink is where the citizen can attach photo evidence.
func UploadLink(publicBase, id string) string {
	return fmt.Sprintf("%s/upload.html?id=%s", strings.TrimRight(publicBase, "/"), id)
}

// SMSBody renders the confirmation text.
func SMSBody(c complaint.Complaint, publicBase string) string {
	headline := "Complaint Registered!"
	if c.Source == complaint.SourceEmail {
		headline = "Email Received!"
	}
	return fmt.Sprintf("दिल्ली सुदर्शन\n%s\nID: %s\nCategory: %s\nDepartment: %s\n\nUpload Evidence:\n%s",
		headline, c.ID, c.Type, c.Dept, UploadLink(publicBase, c.ID))
}

// Notify runs every configured channel for c.
func (d *Dispatcher) Notify(ctx context.Context, c complaint.Complaint) {
	log := d.log.WithContext(ctx).With(logging.F("id", c.ID))

	if d.sms != nil && complaint.IsTextable(c.Phone) {
		to := complaint.NormalizePhone(c.Phone)
		if err := d.sms.SendSMS(ctx, to, SMSBody(c, d.publicBase)); err != nil {
			log.Warn("sms failed", logging.F("to", to), logging.Err(err))
			metrics.Notifications.WithLabelValues("sms", "failed").Inc()
		} else {
			log.Info("sms sent", logging.F("to", to))
			metrics.Notifications.WithLabelValues("sms", "sent").Inc()
		}
	}

	if d.mail != nil && strings.Contains(c.Email, "@") {
		if err := d.mail.SendConfirmation(ctx, c); err != nil {
			log.Warn("confirmation email failed", logging.F("to", c.Email), logging.Err(err))
			metrics.Notifications.WithLabelValues("email", "failed").Inc()
		} else {
			log.Info("confirmation email sent", logging.F("to", c.Email))
			metrics.Notifications.WithLabelValues("email", "sent").Inc()
		}
	}

	if d.officials != nil {
		if err := d.officials.SendComplaint(ctx, c); err != nil {
			log.Warn("officials broadcast failed", logging.Err(err))
			metrics.Notifications.WithLabelValues("officials", "failed").Inc()
		} else {
			metrics.Notifications.WithLabelValues("officials", "sent").Inc()
		}
	}
}
