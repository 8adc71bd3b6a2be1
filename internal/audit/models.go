package audit

import "time"

// EventType names a lifecycle or dispatch action.
type EventType string

const (
	EventDocumentCreated        EventType = "document.created"
	EventDocumentApproved       EventType = "document.approved"
	EventDocumentRejected       EventType = "document.rejected"
	EventDocumentReassigned     EventType = "document.reassigned"
	EventDocumentNotified       EventType = "document.notified"
	EventDocumentDispatchFailed EventType = "document.dispatch_failed"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so sinks can fan out.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	DocumentID string    `json:"document_id"`
	Kind       string    `json:"kind,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	// Approver is the contact the notification went to.
	Approver string `json:"approver,omitempty"`
	// Correlation and client enrichment filled in by the publisher.
	RequestID string `json:"request_id,omitempty"`
	CycleID   string `json:"cycle_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Error     string `json:"error,omitempty"`
}
