package temporal

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"text/template"
	"time"

	"correction-workflow/internal/domain"
)

type emailData struct {
	Event   domain.StageEvent
	From    string
	To      []string
	BaseURL string
}

func (d emailData) ActionURL() string {
	if d.Event.ContinuationToken == "" || d.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(d.BaseURL, "/") + "/v1/tokens/" + url.PathEscape(d.Event.ContinuationToken) + "/actions"
}

var bodyTemplates = template.Must(template.New("stage").Parse(`
{{- define "AWAITING_APPROVAL" -}}
Document {{.Event.DocumentID}} ({{.Event.Category}}) is waiting for your approval at stage {{.Event.Stage}}.
Current state: {{.Event.State}}.
{{- with .ActionURL}}

Act on it here: {{.}}
{{- end}}
{{- end}}

{{- define "SUBMITTED" -}}
Document {{.Event.DocumentID}} ({{.Event.Category}}) was revised and resubmitted. It is waiting for your approval.
{{- with .ActionURL}}

Act on it here: {{.}}
{{- end}}
{{- end}}

{{- define "REJECTED" -}}
Document {{.Event.DocumentID}} ({{.Event.Category}}) was sent back for revision by {{.Event.ActorID}}.

Reason: {{.Event.Comment}}
{{- end}}

{{- define "CLOSED" -}}
Document {{.Event.DocumentID}} ({{.Event.Category}}) has been fully approved and closed.
{{- end}}
`))

func subjectFor(event domain.StageEvent) string {
	switch event.Kind {
	case domain.EventAwaitingApproval:
		return fmt.Sprintf("Approval needed: %s", event.DocumentID)
	case domain.EventSubmitted:
		return fmt.Sprintf("Resubmitted for approval: %s", event.DocumentID)
	case domain.EventRejected:
		return fmt.Sprintf("Returned for revision: %s", event.DocumentID)
	case domain.EventClosed:
		return fmt.Sprintf("Approved and closed: %s", event.DocumentID)
	default:
		return fmt.Sprintf("Update on %s", event.DocumentID)
	}
}

func notificationText(event domain.StageEvent) string {
	return subjectFor(event)
}

func renderEmail(d emailData) ([]byte, error) {
	if bodyTemplates.Lookup(string(d.Event.Kind)) == nil {
		return nil, fmt.Errorf("no email template for %q", d.Event.Kind)
	}

	var body bytes.Buffer
	if err := bodyTemplates.ExecuteTemplate(&body, string(d.Event.Kind), d); err != nil {
		return nil, err
	}

	occurred := d.Event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", d.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(d.To, ", "))
	fmt.Fprintf(&msg, "Reply-To: %s\r\n", d.From)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subjectFor(d.Event)))
	fmt.Fprintf(&msg, "Date: %s\r\n", occurred.Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", d.Event.ID, messageDomain(d.From))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	msg.WriteString("\r\n")
	return msg.Bytes(), nil
}

func messageDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return strings.Trim(from[i+1:], "> ")
	}
	return "localhost"
}
