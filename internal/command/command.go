package command

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultPrefix is the subject prefix that marks a message as a command
const DefaultPrefix = "/movie"

// Known verbs
const (
	VerbSearch   = "search"
	VerbDownload = "download"
)

// ErrUnauthorized is returned when a sender is not on the allow-list
var ErrUnauthorized = errors.New("sender is not authorized")

// grammar: "/<verb> <argument>" at the start of the first non-empty line.
// The separator may span line breaks; the argument is the rest of the line it starts on.
var grammar = regexp.MustCompile(`^/(\w+)\s+(.+)`)

// Command is an instruction parsed from a message body
type Command struct {
	Verb     string
	Argument string
}

// Parse extracts a command from a body.
// Matching starts at the first non-empty line; anything that does not
// match the grammar yields ok == false.
func Parse(body string) (Command, bool) {
	match := grammar.FindStringSubmatch(strings.TrimLeftFunc(body, unicode.IsSpace))
	if match == nil {
		return Command{}, false
	}

	arg := strings.TrimSpace(match[2])
	if arg == "" {
		return Command{}, false
	}

	return Command{Verb: strings.ToLower(match[1]), Argument: arg}, true
}

// HasPrefix reports whether a subject carries the command prefix
func HasPrefix(subject, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(subject), prefix)
}

// Policy decides which senders may issue commands
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy creates a policy from an allow-list of addresses
func NewPolicy(addresses []string) *Policy {
	p := &Policy{allowed: make(map[string]struct{}, len(addresses))}
	for _, addr := range addresses {
		addr = normalize(addr)
		if addr != "" {
			p.allowed[addr] = struct{}{}
		}
	}
	return p
}

// Authorize returns ErrUnauthorized unless addr is on the allow-list
func (p *Policy) Authorize(addr string) error {
	if p == nil {
		return ErrUnauthorized
	}
	if _, ok := p.allowed[normalize(addr)]; !ok {
		return ErrUnauthorized
	}
	return nil
}

// Len returns the number of allowed senders
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.allowed)
}

// Addresses returns the normalized allowed senders, sorted
func (p *Policy) Addresses() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.allowed))
	for addr := range p.allowed {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if i, j := strings.LastIndex(addr, "<"), strings.LastIndex(addr, ">"); i >= 0 && j > i {
		addr = addr[i+1 : j]
	}
	return strings.ToLower(addr)
}
