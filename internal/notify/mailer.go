package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/wneessen/go-mail"

	"grievance/internal/complaint"
	apperrors "grievance/internal/errors"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends confirmation emails over authenticated SMTP.
type SMTPMailer struct {
	cfg        SMTPConfig
	publicBase string
}

// NewSMTPMailer returns nil when no credentials are configured.
func NewSMTPMailer(cfg SMTPConfig, publicBase string) *SMTPMailer {
	if cfg.Username == "" || cfg.Password == "" {
		return nil
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{cfg: cfg, publicBase: publicBase}
}

// SendConfirmation emails the complaint receipt to c.Email.
func (m *SMTPMailer) SendConfirmation(ctx context.Context, c complaint.Complaint) error {
	msg, err := buildConfirmation(m.cfg.From, c, m.publicBase)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return apperrors.NewCollaboratorError("smtp", "create client", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperrors.NewCollaboratorError("smtp", "send confirmation", err)
	}
	return nil
}

func buildConfirmation(from string, c complaint.Complaint, publicBase string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(c.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", c.Email, err)
	}
	msg.Subject(fmt.Sprintf("Complaint %s registered", c.ID))

	link := UploadLink(publicBase, c.ID)
	text := fmt.Sprintf(
		"Your complaint has been registered.\n\nComplaint ID: %s\nCategory: %s\nDepartment: %s\nStatus: %s\n\nUpload evidence here:\n%s\n",
		c.ID, c.Type, c.Dept, c.Status, link)
	body := fmt.Sprintf(
		"<p>Your complaint has been registered.</p>"+
			"<table><tr><td>Complaint ID</td><td><b>%s</b></td></tr>"+
			"<tr><td>Category</td><td>%s</td></tr>"+
			"<tr><td>Department</td><td>%s</td></tr>"+
			"<tr><td>Status</td><td>%s</td></tr></table>"+
			`<p><a href="%s">Upload evidence</a></p>`,
		html.EscapeString(c.ID), html.EscapeString(c.Type), html.EscapeString(c.Dept),
		html.EscapeString(c.Status), html.EscapeString(link))

	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, body)
	return msg, nil
}
