package contact

import (
	"context"
	"net"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Verification flag values. Flags annotate a contact's deliverability
// risk; they never block outreach.
const (
	FlagGenericInbox   = "generic_inbox"
	FlagNoMXRecord     = "no_mx_record"
	FlagFreeMailDomain = "free_mail_domain"
)

var genericLocalParts = map[string]bool{
	"info":      true,
	"office":    true,
	"contact":   true,
	"admin":     true,
	"hello":     true,
	"leasing":   true,
	"rentals":   true,
	"frontdesk": true,
}

var freeMailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
	"icloud.com":  true,
}

// Verifier annotates contacts with deliverability flags. The MX lookup
// is injectable so tests stay off the network.
type Verifier struct {
	lookupMX func(ctx context.Context, domain string) ([]*net.MX, error)
}

func NewVerifier() *Verifier {
	var r net.Resolver
	return &Verifier{lookupMX: r.LookupMX}
}

// WithLookupMX overrides the DNS resolver.
func (v *Verifier) WithLookupMX(fn func(ctx context.Context, domain string) ([]*net.MX, error)) *Verifier {
	v.lookupMX = fn
	return v
}

// Verify computes flags for the contact's email and marks it verified
// when none apply. The contact is mutated in place.
func (v *Verifier) Verify(ctx context.Context, c *model.Contact) {
	local, domain, ok := strings.Cut(strings.ToLower(c.Email), "@")
	if !ok {
		c.Verified = false
		return
	}

	var flags []string
	if genericLocalParts[local] {
		flags = append(flags, FlagGenericInbox)
	}
	if freeMailDomains[domain] {
		flags = append(flags, FlagFreeMailDomain)
	}
	if v.lookupMX != nil {
		if mx, err := v.lookupMX(ctx, domain); err != nil || len(mx) == 0 {
			flags = append(flags, FlagNoMXRecord)
		}
	}

	c.VerificationFlags = flags
	c.Verified = len(flags) == 0
}
