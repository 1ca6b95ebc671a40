package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParsePlainText(t *testing.T) {
	raw := crlf(`From: Asha Verma <asha@example.com>
To: desk@civic.example.org
Subject: Garbage pile near school
Content-Type: text/plain; charset=utf-8

There is a huge garbage pile near Govt School, Sector 9. Call 98765 43210.
`)
	m, err := Parse(Raw{UID: 7, Body: raw})
	require.NoError(t, err)

	assert.Equal(t, uint32(7), m.UID)
	assert.Equal(t, "asha@example.com", m.From)
	assert.Equal(t, "Asha Verma", m.FromName)
	assert.Equal(t, "Garbage pile near school", m.Subject)
	assert.Contains(t, m.Text, "Sector 9")
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: ravi@example.com
Subject: =?UTF-8?B?4KSq4KS+4KSo4KWA?=
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset="utf-8"
Content-Transfer-Encoding: quoted-printable

Water pipe leaking on Ring Road since two days, please fix it =
soon.
--b1
Content-Type: text/html; charset="utf-8"

<p>Water pipe leaking</p>
--b1--
`)
	m, err := Parse(Raw{UID: 1, Body: raw})
	require.NoError(t, err)

	assert.Equal(t, "पानी", m.Subject)
	assert.Equal(t, "ravi@example.com", m.From)
	assert.Equal(t, "Water pipe leaking on Ring Road since two days, please fix it soon.", m.Text)
}

func TestParseHTMLOnlyAndLegacyCharset(t *testing.T) {
	raw := crlf(`From: old@example.com
Subject: Street light
Content-Type: text/html; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

<div>Street light broken at Caf=E9 corner</div><br>Thanks
`)
	m, err := Parse(Raw{UID: 2, Body: raw})
	require.NoError(t, err)
	assert.Contains(t, m.Text, "Café corner")
	assert.Contains(t, m.Text, "Thanks")
	assert.NotContains(t, m.Text, "<div>")
}

func TestParseBase64Body(t *testing.T) {
	raw := crlf(`From: b64@example.com
Subject: Pothole
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

RGVlcCBwb3Rob2xlIG9uIE1HIFJvYWQ=
`)
	m, err := Parse(Raw{UID: 3, Body: raw})
	require.NoError(t, err)
	assert.Equal(t, "Deep pothole on MG Road", m.Text)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse(Raw{UID: 4, Body: []byte("no headers at all")})
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><title>Complaint</title><style>p > span { color: red }</style></head>` +
		`<body><p>Drain &amp; sewer overflow&nbsp;near <a href="/x?a=1&b=2" title="a > b">Gate&#160;3</a></p>` +
		`<script>if (a < b) { alert("x") }</script><div>Since Monday &#8211; please help</div></body></html>`

	out := stripHTML(in)
	assert.Equal(t, "Drain & sewer overflow near Gate 3\nSince Monday – please help\n", out)
	assert.NotContains(t, out, "alert")
	assert.NotContains(t, out, "color")
}
