package email

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type mailServers struct{ imap, smtp string }

// Mail hosts of providers whose names cannot be derived from the domain
var knownServers = map[string]mailServers{
	"qq.com":         {"imap.qq.com", "smtp.qq.com"},
	"foxmail.com":    {"imap.qq.com", "smtp.qq.com"},
	"163.com":        {"imap.163.com", "smtp.163.com"},
	"126.com":        {"imap.126.com", "smtp.126.com"},
	"aliyun.com":     {"imap.aliyun.com", "smtp.aliyun.com"},
	"gmail.com":      {"imap.gmail.com", "smtp.gmail.com"},
	"googlemail.com": {"imap.gmail.com", "smtp.gmail.com"},
	"outlook.com":    {"outlook.office365.com", "smtp.office365.com"},
	"hotmail.com":    {"outlook.office365.com", "smtp.office365.com"},
	"live.com":       {"outlook.office365.com", "smtp.office365.com"},
	"yahoo.com":      {"imap.mail.yahoo.com", "smtp.mail.yahoo.com"},
	"icloud.com":     {"imap.mail.me.com", "smtp.mail.me.com"},
	"me.com":         {"imap.mail.me.com", "smtp.mail.me.com"},
	"yandex.ru":      {"imap.yandex.ru", "smtp.yandex.ru"},
	"mail.ru":        {"imap.mail.ru", "smtp.mail.ru"},
	"fastmail.com":   {"imap.fastmail.com", "smtp.fastmail.com"},
	"zoho.com":       {"imap.zoho.com", "smtp.zoho.com"},
}

// Hosted mail recognized by the domain's MX records
var mxProviders = []struct {
	pattern *regexp.Regexp
	servers mailServers
}{
	// Tencent Exmail (corporate); the consumer qq.com MX is mx*.qq.com
	{regexp.MustCompile(`^mxbiz\d*\.qq\.com$`), mailServers{"imap.exmail.qq.com", "smtp.exmail.qq.com"}},
	{regexp.MustCompile(`(^|\.)mxhichina\.com$`), mailServers{"imap.qiye.aliyun.com", "smtp.qiye.aliyun.com"}},
	{regexp.MustCompile(`^qiye163mx\d*\.mxmail\.netease\.com$`), mailServers{"imap.qiye.163.com", "smtp.qiye.163.com"}},
	{regexp.MustCompile(`(^|\.)google\.com$|(^|\.)googlemail\.com$`), mailServers{"imap.gmail.com", "smtp.gmail.com"}},
	{regexp.MustCompile(`\.mail\.protection\.outlook\.com$`), mailServers{"outlook.office365.com", "smtp.office365.com"}},
	{regexp.MustCompile(`(^|\.)zoho\.(com|eu)$`), mailServers{"imap.zoho.com", "smtp.zoho.com"}},
	{regexp.MustCompile(`(^|\.)yandex\.(ru|net)$`), mailServers{"imap.yandex.ru", "smtp.yandex.ru"}},
}

// lookupMX returns the MX records of a domain, ordered by preference
var lookupMX = net.LookupMX

// probe reports whether host:port accepts TCP connections
var probe = func(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ResolveIMAPServer determines the IMAP host:port for an account
func ResolveIMAPServer(account string, port int) (string, error) {
	return resolve(account, "imap", port, func(s mailServers) string { return s.imap })
}

// ResolveSMTPServer determines the SMTP host:port for an account
func ResolveSMTPServer(account string, port int) (string, error) {
	return resolve(account, "smtp", port, func(s mailServers) string { return s.smtp })
}

func resolve(account, proto string, port int, pick func(mailServers) string) (string, error) {
	domain := GetDomainFromEmail(account)
	if domain == "" {
		return "", fmt.Errorf("invalid email format: %q", account)
	}

	// Check known providers first
	if server, ok := knownServers[domain]; ok {
		return net.JoinHostPort(pick(server), strconv.Itoa(port)), nil
	}

	mxHosts := mxHostsOf(domain)

	// Hosted providers, recognized by MX
	for _, mx := range mxHosts {
		for _, p := range mxProviders {
			if p.pattern.MatchString(mx) {
				return net.JoinHostPort(pick(p.servers), strconv.Itoa(port)), nil
			}
		}
	}

	for _, host := range []string{proto + "." + domain, "mail." + domain, domain} {
		if probe(host, port) {
			return net.JoinHostPort(host, strconv.Itoa(port)), nil
		}
	}

	// Derive from the primary MX, e.g. mx.example.com -> imap.example.com
	if len(mxHosts) > 0 {
		if host, ok := deriveFromMX(mxHosts[0], proto, port); ok {
			return net.JoinHostPort(host, strconv.Itoa(port)), nil
		}
	}

	return net.JoinHostPort(proto+"."+domain, strconv.Itoa(port)), nil
}

// mxHostsOf returns the lowercased MX hosts of domain, most preferred first
func mxHostsOf(domain string) []string {
	records, err := lookupMX(domain)
	if err != nil {
		return nil
	}

	hosts := make([]string, 0, len(records))
	for _, r := range records {
		hosts = append(hosts, strings.ToLower(strings.TrimSuffix(r.Host, ".")))
	}
	return hosts
}

func deriveFromMX(mxHost, proto string, port int) (string, bool) {
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 {
		return "", false
	}

	for _, host := range []string{proto + "." + parts[1], "mail." + parts[1]} {
		if probe(host, port) {
			return host, true
		}
	}
	return "", false
}

// GetDomainFromEmail extracts domain from email address
func GetDomainFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
