package contact

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

var domainSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// PatternSource guesses a leasing inbox from the building's management
// company name. Lowest trust in the cascade: it exists so buildings
// with no scraped contact still get a candidate worth verifying, and
// the MX check weeds out domains that do not exist.
type PatternSource struct{}

func NewPatternSource() *PatternSource { return &PatternSource{} }

func (p *PatternSource) Name() string { return "pattern" }

func (p *PatternSource) Lookup(ctx context.Context, b model.Building) (*Finding, error) {
	company := ""
	switch {
	case b.ManagementCompany != nil && *b.ManagementCompany != "":
		company = *b.ManagementCompany
	case b.PropertyManager != nil && *b.PropertyManager != "":
		company = *b.PropertyManager
	default:
		return nil, nil
	}

	slug := companySlug(company)
	if slug == "" {
		return nil, nil
	}
	return &Finding{Email: "leasing@" + slug + ".com"}, nil
}

// companySlug reduces "Acme Property Management, LLC" to "acmeproperty".
func companySlug(name string) string {
	name = strings.ToLower(name)
	for _, suffix := range []string{"llc", "inc", "ltd", "corp", "co", "management", "mgmt", "group", "realty"} {
		name = strings.ReplaceAll(name, " "+suffix, "")
	}
	slug := domainSlugRe.ReplaceAllString(name, "")
	if len(slug) < 3 {
		return ""
	}
	return slug
}
