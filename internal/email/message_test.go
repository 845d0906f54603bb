package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessageMultipartAlternative(t *testing.T) {
	raw := crlf(`From: =?UTF-8?B?5byg5LiJ?= <zhang@example.com>
To: watcher@example.com
Subject: =?GBK?B?xOO6w8rAvec=?=
Message-ID: <abc@example.com>
Date: Mon, 02 Jan 2006 15:04:05 -0700
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

/search inception 2010
--b1
Content-Type: text/html; charset=utf-8

<p>/search inception 2010</p>
--b1--
`)

	msg, err := ParseMessage(7, raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), msg.UID)
	assert.Equal(t, "你好世界", msg.Subject)
	assert.Equal(t, "张三", msg.From.Name)
	assert.Equal(t, "zhang@example.com", msg.From.Address)
	assert.Equal(t, "abc@example.com", msg.MessageID)
	assert.Equal(t, 2006, msg.Date.Year())
	assert.Equal(t, "/search inception 2010", strings.TrimSpace(msg.BodyText))
	assert.Contains(t, msg.BodyHTML, "<p>")
	assert.Empty(t, msg.Problems)
}

func TestParseMessageNestedMultipart(t *testing.T) {
	raw := crlf(`From: boss@example.com
Subject: =?gb2312?B?z8LU2A==?=
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=koi8-r
Content-Transfer-Encoding: base64

8NLJ18XU
--inner--
--outer
Content-Type: application/octet-stream
Content-Disposition: attachment; filename="a.bin"

AAAA
--outer--
`)

	msg, err := ParseMessage(1, raw)
	require.NoError(t, err)

	assert.Equal(t, "下载", msg.Subject)
	assert.Equal(t, "boss@example.com", msg.From.Address)
	assert.Equal(t, "Привет", msg.BodyText)
}

func TestParseMessageWithoutPlainPart(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: html only
Content-Type: text/html; charset=utf-8

<b>hello</b>
`)

	msg, err := ParseMessage(2, raw)
	require.NoError(t, err)

	assert.Equal(t, "", msg.BodyText)
	assert.Contains(t, msg.BodyHTML, "hello")
}

func TestParseMessageUndeclaredCharsetDefaultsToUTF8(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: Привет мир

/download http://example.com/file
`)

	msg, err := ParseMessage(3, raw)
	require.NoError(t, err)

	assert.Equal(t, "Привет мир", msg.Subject)
	assert.Equal(t, "/download http://example.com/file", strings.TrimSpace(msg.BodyText))
	assert.Empty(t, msg.Problems)
}

func TestParseMessageUnknownCharsetIsBestEffort(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: =?x-no-such-charset?B?YWJj?=

body
`)

	msg, err := ParseMessage(4, raw)
	require.NoError(t, err)

	assert.Equal(t, "=?x-no-such-charset?B?YWJj?=", msg.Subject)
	require.NotEmpty(t, msg.Problems)
	assert.True(t, IsDecodeError(msg.Problems[0]))
}

func TestDecodeHeader(t *testing.T) {
	got, err := DecodeHeader("=?ISO-8859-1?Q?Caf=E9?=")
	require.NoError(t, err)
	assert.Equal(t, "Café", got)

	got, err = DecodeHeader("plain subject")
	require.NoError(t, err)
	assert.Equal(t, "plain subject", got)

	got, err = DecodeHeader("=?bogus?Q?x?=")
	assert.Error(t, err)
	assert.Equal(t, "=?bogus?Q?x?=", got)
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "a@example.com", Address{Address: "a@example.com"}.String())
	assert.Equal(t, "A <a@example.com>", Address{Name: "A", Address: "a@example.com"}.String())
}
