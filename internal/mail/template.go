package mail

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

const outreachSubject = "Investment Inquiry for %s"

var outreachBody = template.Must(template.New("outreach").Parse(
	`{{if .ContactName}}Hi {{.ContactName}},{{else}}Hello,{{end}}

I'm reaching out about {{.BuildingRef}}. We're evaluating residential
properties in the area for a potential acquisition, and your building
came up in our research.

Would you be open to a short conversation about whether the owners have
any interest in discussing a sale? Happy to work around your schedule.

Best regards,
Sells Group Acquisitions
`))

type outreachData struct {
	ContactName string
	BuildingRef string
}

// Compose renders the outreach message for a building. The building
// must already carry a resolved contact.
func Compose(b model.Building) (Message, error) {
	if b.Contact == nil || b.Contact.Email == "" {
		return Message{}, eris.Errorf("mail: building %s has no contact", b.IdentityKey)
	}

	ref := b.Address
	if b.StandardizedAddress != "" {
		ref = b.StandardizedAddress
	}
	if b.Name != nil && *b.Name != "" {
		ref = *b.Name + " at " + ref
	}

	data := outreachData{BuildingRef: ref}
	if name := firstName(b.Contact.Name); name != "" {
		data.ContactName = name
	}

	var body strings.Builder
	if err := outreachBody.Execute(&body, data); err != nil {
		return Message{}, eris.Wrap(err, "mail: render outreach body")
	}

	addr := b.Address
	if b.StandardizedAddress != "" {
		addr = b.StandardizedAddress
	}
	return Message{
		To:      b.Contact.Email,
		ToName:  b.Contact.Name,
		Subject: fmt.Sprintf(outreachSubject, addr),
		Body:    body.String(),
	}, nil
}

func firstName(full string) string {
	fields := strings.Fields(strings.TrimSpace(full))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
