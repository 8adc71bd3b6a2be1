package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	sender, err := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 2525, From: "approvals@plant.example"})
	require.NoError(t, err)

	m, err := sender.build(Message{
		To:         "ravi.kumar@plant.example",
		Subject:    "Purchase Requisition MG/IN-0042",
		Text:       "plain body",
		HTML:       "<p>html body</p>",
		Attachment: &Attachment{Filename: "pr.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.3")},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Purchase Requisition MG/IN-0042")
	assert.Contains(t, raw, "ravi.kumar@plant.example")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "application/pdf")
	assert.Contains(t, raw, `filename="pr.pdf"`)
}

func TestSMTPSender_RejectsBadRecipient(t *testing.T) {
	sender, err := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 2525, From: "approvals@plant.example"})
	require.NoError(t, err)

	_, err = sender.build(Message{To: "not an address"})
	assert.Error(t, err)
}
