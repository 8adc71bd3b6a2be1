package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"approvals/internal/document/models"
	"approvals/internal/snapshot"
	"approvals/pkg/email"
)

// Attachment is a file sent with the message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one approval request to one approver.
type Message struct {
	DocumentID string
	To         string
	Subject    string
	Text       string
	HTML       string
	Links      ActionLinks
	Attachment *Attachment
}

// ActionLinks are the one-click decision URLs embedded in a message.
type ActionLinks struct {
	Approve string
	Reject  string
}

// Links builds {base}/action/{kind}/{approve|reject}?id={id}.
func Links(base string, doc *models.Document) ActionLinks {
	base = strings.TrimRight(base, "/")
	link := func(action string) string {
		return base + "/action/" + string(doc.Kind) + "/" + action + "?id=" + url.QueryEscape(doc.ID)
	}
	return ActionLinks{Approve: link("approve"), Reject: link("reject")}
}

var htmlBody = template.Must(template.New("message").Parse(`<p>Dear {{.Approver}},</p>
<p>The following {{.KindLabel}} is awaiting your approval.</p>
<table>
<tr><th align="left">Document</th><td>{{.Number}}</td></tr>
<tr><th align="left">Requested by</th><td>{{.Requester}}</td></tr>
<tr><th align="left">Department</th><td>{{.Department}}</td></tr>
<tr><th align="left">Date</th><td>{{.RequestDate}}</td></tr>
</table>
<p>The full document is attached.</p>
<p><a href="{{.Links.Approve}}">Approve</a> &nbsp; <a href="{{.Links.Reject}}">Reject</a></p>
`))

type bodyData struct {
	Approver    string
	KindLabel   string
	Number      string
	Requester   string
	Department  string
	RequestDate string
	Links       ActionLinks
}

// BuildMessage assembles the notification for doc. subject is the
// per-kind subject prefix; the business number is appended.
func BuildMessage(doc *models.Document, artifact *snapshot.Artifact, baseURL, subject string) (Message, error) {
	if subject == "" {
		subject = "Approval required: " + doc.Kind.Label()
	}
	var summary models.Summary
	if doc.Fields != nil {
		summary = doc.Fields.Summary()
	}
	data := bodyData{
		Approver:    email.DisplayName(doc.ApproverContact),
		KindLabel:   doc.Kind.Label(),
		Number:      doc.DisplayNumber(),
		Requester:   placeholder(summary.Requester),
		Department:  placeholder(summary.Department),
		RequestDate: placeholder(summary.RequestDate.String()),
		Links:       Links(baseURL, doc),
	}

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("build message body: %w", err)
	}

	msg := Message{
		DocumentID: doc.ID,
		To:         doc.ApproverContact,
		Subject:    subject + " " + data.Number,
		Text:       textBody(data),
		HTML:       html.String(),
		Links:      data.Links,
	}
	if artifact != nil {
		msg.Attachment = &Attachment{
			Filename:    artifact.Filename,
			ContentType: artifact.ContentType,
			Content:     artifact.Content,
		}
	}
	return msg, nil
}

func textBody(d bodyData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", d.Approver)
	fmt.Fprintf(&b, "The following %s is awaiting your approval.\n\n", d.KindLabel)
	fmt.Fprintf(&b, "Document:     %s\n", d.Number)
	fmt.Fprintf(&b, "Requested by: %s\n", d.Requester)
	fmt.Fprintf(&b, "Department:   %s\n", d.Department)
	fmt.Fprintf(&b, "Date:         %s\n\n", d.RequestDate)
	b.WriteString("The full document is attached.\n\n")
	fmt.Fprintf(&b, "Approve: %s\n", d.Links.Approve)
	fmt.Fprintf(&b, "Reject:  %s\n", d.Links.Reject)
	return b.String()
}

func placeholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return snapshot.NotAvailable
	}
	return s
}
