package email

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNetwork replaces DNS and TCP probing for the duration of a test
func stubNetwork(t *testing.T, mx map[string][]string, reachable ...string) {
	t.Helper()

	origMX, origProbe := lookupMX, probe
	t.Cleanup(func() { lookupMX, probe = origMX, origProbe })

	lookupMX = func(domain string) ([]*net.MX, error) {
		hosts, ok := mx[domain]
		if !ok {
			return nil, errors.New("no such host")
		}
		records := make([]*net.MX, 0, len(hosts))
		for i, h := range hosts {
			records = append(records, &net.MX{Host: h + ".", Pref: uint16(10 * (i + 1))})
		}
		return records, nil
	}
	probe = func(host string, _ int) bool {
		for _, r := range reachable {
			if r == host {
				return true
			}
		}
		return false
	}
}

func TestResolveKnownProvider(t *testing.T) {
	stubNetwork(t, nil)

	server, err := ResolveIMAPServer("someone@qq.com", 993)
	require.NoError(t, err)
	assert.Equal(t, "imap.qq.com:993", server)

	server, err = ResolveSMTPServer("someone@Gmail.com", 465)
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com:465", server)
}

func TestResolveProbesDomain(t *testing.T) {
	stubNetwork(t, nil, "mail.corp.example")

	server, err := ResolveIMAPServer("ops@corp.example", 993)
	require.NoError(t, err)
	assert.Equal(t, "mail.corp.example:993", server)
}

func TestResolveHostedByMX(t *testing.T) {
	// the consumer qq.com servers answer too, but reject corporate accounts
	stubNetwork(t, map[string][]string{
		"acme.com":   {"mxbiz1.qq.com", "mxbiz2.qq.com"},
		"widgets.io": {"ASPMX.L.GOOGLE.COM", "alt1.aspmx.l.google.com"},
		"contoso.cn": {"contoso-cn.mail.protection.outlook.com"},
	}, "imap.qq.com", "smtp.qq.com")

	server, err := ResolveIMAPServer("user@acme.com", 993)
	require.NoError(t, err)
	assert.Equal(t, "imap.exmail.qq.com:993", server)

	server, err = ResolveSMTPServer("user@acme.com", 465)
	require.NoError(t, err)
	assert.Equal(t, "smtp.exmail.qq.com:465", server)

	server, err = ResolveIMAPServer("user@widgets.io", 993)
	require.NoError(t, err)
	assert.Equal(t, "imap.gmail.com:993", server)

	server, err = ResolveSMTPServer("user@contoso.cn", 587)
	require.NoError(t, err)
	assert.Equal(t, "smtp.office365.com:587", server)
}

func TestResolveDerivesFromMX(t *testing.T) {
	stubNetwork(t, map[string][]string{
		"shop.example": {"mx1.mailhost.example"},
	}, "imap.mailhost.example")

	server, err := ResolveIMAPServer("orders@shop.example", 993)
	require.NoError(t, err)
	assert.Equal(t, "imap.mailhost.example:993", server)
}

func TestResolveFallsBackToProtocolHost(t *testing.T) {
	stubNetwork(t, nil)

	server, err := ResolveIMAPServer("ops@offline.example", 993)
	require.NoError(t, err)
	assert.Equal(t, "imap.offline.example:993", server)
}

func TestResolveInvalidAccount(t *testing.T) {
	_, err := ResolveIMAPServer("not-an-address", 993)
	assert.Error(t, err)
}

func TestGetDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", GetDomainFromEmail("a@Example.com"))
	assert.Equal(t, "", GetDomainFromEmail("nope"))
	assert.Equal(t, "", GetDomainFromEmail("a@"))
}
