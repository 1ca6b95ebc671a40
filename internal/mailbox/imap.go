// Package mailbox reads unseen citizen emails over IMAP and turns raw RFC 5322
// messages into sender, subject and plain text.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
)

// Raw is one fetched message.
type Raw struct {
	UID  uint32
	Body []byte
}

// Config holds IMAP connection settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	AuthTimeout time.Duration
	// TLS overrides the client TLS settings; ServerName defaults to Host.
	TLS *tls.Config
}

// IMAP fetches unseen messages from INBOX. Every message that was read is
// flagged \Seen explicitly, so each one is handed out at most once.
type IMAP struct {
	cfg Config
	log logging.Logger
}

// NewIMAP creates an IMAP mailbox.
func NewIMAP(cfg Config, log logging.Logger) *IMAP {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 3 * time.Second
	}
	return &IMAP{cfg: cfg, log: log.With(logging.F("component", "imap"))}
}

// FetchUnseen connects, selects INBOX and returns every UNSEEN message.
//
// Failures are CollaboratorErrors. When the fetch breaks off midway the
// messages read so far are returned alongside the error; they are already
// flagged seen and must still be processed.
func (m *IMAP) FetchUnseen(ctx context.Context) ([]Raw, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	tlsConfig := &tls.Config{}
	if m.cfg.TLS != nil {
		tlsConfig = m.cfg.TLS.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = m.cfg.Host
	}
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: m.cfg.AuthTimeout}, addr, tlsConfig)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("imap", "dial "+addr, err)
	}
	c.Timeout = m.cfg.AuthTimeout

	// Tear the connection down if the caller gives up mid-fetch.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()
	defer c.Logout()

	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		return nil, apperrors.NewCollaboratorError("imap", "login", err)
	}
	// Login is the only step bound by the auth timeout.
	c.Timeout = 0

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, apperrors.NewCollaboratorError("imap", "select INBOX", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("imap", "search UNSEEN", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	out := make([]Raw, 0, len(uids))
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			m.log.Warn("message without body", logging.F("uid", msg.Uid))
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			m.log.Warn("failed to read message body", logging.F("uid", msg.Uid), logging.Err(err))
			continue
		}
		out = append(out, Raw{UID: msg.Uid, Body: body})
	}
	fetchErr := <-done
	m.markSeen(c, out)
	if fetchErr != nil {
		return out, apperrors.NewCollaboratorError("imap", "fetch", fetchErr)
	}

	m.log.Debug("fetched unseen messages", logging.F("count", len(out)))
	return out, nil
}

// markSeen flags the read messages. Servers usually do this on a non-peek
// fetch already; not all of them do.
func (m *IMAP) markSeen(c *client.Client, read []Raw) {
	if len(read) == 0 {
		return
	}
	seqset := new(imap.SeqSet)
	for _, r := range read {
		seqset.AddNum(r.UID)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		m.log.Warn("failed to flag messages seen", logging.F("count", len(read)), logging.Err(err))
	}
}
