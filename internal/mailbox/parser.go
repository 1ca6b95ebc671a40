package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Message is the part of an email the intake agent cares about.
type Message struct {
	UID      uint32
	From     string // bare address
	FromName string
	Subject  string
	Text     string
}

// Parse decodes a raw RFC 5322 message. The plain-text body is preferred; an
// HTML-only body is reduced to text.
func Parse(raw Raw) (Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw.Body))
	if err != nil {
		return Message{}, fmt.Errorf("failed to read message %d: %w", raw.UID, err)
	}

	out := Message{UID: raw.UID, Subject: decodeHeader(msg.Header.Get("Subject"))}
	if addr, err := mail.ParseAddress(decodeHeader(msg.Header.Get("From"))); err == nil {
		out.From = addr.Address
		out.FromName = addr.Name
	}

	var b body
	if err := b.read(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body); err != nil {
		return Message{}, fmt.Errorf("failed to read body of %d: %w", raw.UID, err)
	}
	out.Text = strings.TrimSpace(b.text)
	if out.Text == "" {
		out.Text = strings.TrimSpace(stripHTML(b.html))
	}
	return out, nil
}

type body struct {
	text string
	html string
}

func (b *body) read(contentType, transferEncoding string, r io.Reader) error {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Treat a malformed Content-Type as plain text
		data, _ := io.ReadAll(r)
		b.text += string(data)
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment") {
				continue
			}
			if err := b.read(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part); err != nil {
				return err
			}
		}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	data = decodeTransferEncoding(data, strings.ToLower(strings.TrimSpace(transferEncoding)))
	data = decodeCharset(data, params["charset"])

	if mediaType == "text/html" {
		b.html += string(data)
	} else if b.text == "" {
		b.text = string(data)
	}
	return nil
}

func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, err
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func decodeTransferEncoding(data []byte, encoding string) []byte {
	switch encoding {
	case "base64":
		cleaned := bytes.ReplaceAll(data, []byte("\r\n"), nil)
		cleaned = bytes.ReplaceAll(cleaned, []byte("\n"), nil)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
		n, err := base64.StdEncoding.Decode(decoded, cleaned)
		if err != nil {
			return data
		}
		return decoded[:n]
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

// decodeCharset converts legacy charsets to UTF-8; unknown ones pass through.
func decodeCharset(data []byte, charset string) []byte {
	charset = strings.TrimSpace(charset)
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return data
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return data
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return data
	}
	return out
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// stripHTML renders an HTML body as plain text. Script and style contents are
// dropped, entities are decoded and block elements become line breaks.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	hidden := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			text := strings.ReplaceAll(b.String(), "\u00a0", " ")
			return blankRuns.ReplaceAllString(text, "\n\n")
		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); a {
			case atom.Script, atom.Style, atom.Head, atom.Title:
				if tt == html.StartTagToken {
					hidden++
				} else if tt == html.EndTagToken && hidden > 0 {
					hidden--
				}
			case atom.Br:
				b.WriteByte('\n')
			case atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4, atom.Blockquote:
				if tt == html.EndTagToken {
					b.WriteByte('\n')
				}
			}
		}
	}
}
