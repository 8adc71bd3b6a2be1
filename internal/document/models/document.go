package models

import (
	"fmt"
	"strings"
	"time"

	dErrors "approvals/pkg/domain-errors"
	"approvals/pkg/email"
	"approvals/pkg/platform/sentinel"
)

// Kind distinguishes document variants. Every kind shares the same
// lifecycle; only the Fields payload differs.
type Kind string

const (
	KindPurchaseRequisition Kind = "purchase_requisition"
	KindJobWorkReport       Kind = "job_work_report"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindPurchaseRequisition, KindJobWorkReport}
}

func (k Kind) IsValid() bool {
	return k == KindPurchaseRequisition || k == KindJobWorkReport
}

// Label is the human-readable kind name used in subjects and titles.
func (k Kind) Label() string {
	switch k {
	case KindPurchaseRequisition:
		return "Purchase Requisition"
	case KindJobWorkReport:
		return "Job Work Report"
	default:
		return string(k)
	}
}

// ParseKind validates a kind received from a URL or request body.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown document kind %q", s)
	}
	return k, nil
}

// Status is the approval lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsDecision reports whether s is a terminal outcome of a decision.
func (s Status) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo encodes the lifecycle DAG: draft → pending at activation,
// pending → approved | rejected, nothing else.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusPending
	case StatusPending:
		return to.IsDecision()
	default:
		return false
	}
}

// LegacyCode is the numeric status used by the plant ERP tables and printed
// on snapshots.
func (s Status) LegacyCode() int {
	switch s {
	case StatusApproved:
		return 1
	case StatusPending:
		return 2
	case StatusRejected:
		return 3
	default:
		return 0
	}
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown document status %q", s)
	}
	return st, nil
}

// Document is a submitted business record subject to approval.
//
// Invariants:
//   - ID and Kind never change after construction
//   - Status only moves along Status.CanTransitionTo
//   - Notified only moves false → true and is independent of Status
//   - a Rejected document always carries a non-blank Reason
type Document struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	Number          string     `json:"number"`
	Status          Status     `json:"status"`
	ApproverContact string     `json:"approver_contact"`
	Notified        bool       `json:"notified"`
	NotifiedAt      *time.Time `json:"-"`
	Reason          string     `json:"reason,omitempty"`
	Fields          Fields     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	LastModifiedAt  time.Time  `json:"last_modified_at"`
}

// NewDocument activates a new document: it starts Pending and un-notified.
func NewDocument(id string, kind Kind, number, contact string, fields Fields, now time.Time) (*Document, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document id cannot be empty")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown document kind %q", kind))
	}
	if fields == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document fields are required")
	}
	if fields.Kind() != kind {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document fields do not match kind")
	}
	if len(number) > MaxNumberLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("document number must be %d characters or less", MaxNumberLength))
	}
	return &Document{
		ID:              id,
		Kind:            kind,
		Number:          number,
		Status:          StatusPending,
		ApproverContact: contact,
		Fields:          fields,
		CreatedAt:       now,
		LastModifiedAt:  now,
	}, nil
}

// MaxNumberLength bounds business document numbers.
const MaxNumberLength = 64

func (d *Document) IsPending() bool {
	return d.Status == StatusPending
}

// DisplayNumber is the business number, or the legacy fallback prefix
// plus the id when none was recorded.
func (d *Document) DisplayNumber() string {
	if n := strings.TrimSpace(d.Number); n != "" {
		return n
	}
	switch d.Kind {
	case KindJobWorkReport:
		return "JCWIP-" + d.ID
	default:
		return "MG/IN-" + d.ID
	}
}

// CanDecide checks that the document may move to the decision status to.
func (d *Document) CanDecide(to Status) error {
	if !to.IsDecision() {
		return fmt.Errorf("%q is not a decision status", to)
	}
	if !d.Status.CanTransitionTo(to) {
		return fmt.Errorf("document %s is %s: %w", d.ID, d.Status, sentinel.ErrInvalidState)
	}
	return nil
}

// ApplyDecision records the decision. Call CanDecide first.
func (d *Document) ApplyDecision(to Status, reason string, now time.Time) {
	d.Status = to
	d.Reason = reason
	d.LastModifiedAt = now
}

// Decide validates and applies a decision in one call.
func (d *Document) Decide(to Status, reason string, now time.Time) error {
	if err := d.CanDecide(to); err != nil {
		return err
	}
	d.ApplyDecision(to, reason, now)
	return nil
}

// MarkNotified sets the notified flag. It reports false when the flag was
// already set, leaving NotifiedAt untouched.
func (d *Document) MarkNotified(now time.Time) bool {
	if d.Notified {
		return false
	}
	d.Notified = true
	t := now
	d.NotifiedAt = &t
	d.LastModifiedAt = now
	return true
}

// DispatchEligible reports whether the dispatcher should notify the
// approver: pending, not yet notified, with a well-formed contact.
func (d *Document) DispatchEligible() bool {
	return d.Status == StatusPending && !d.Notified && email.IsValid(d.ApproverContact)
}

// ScanCursor is a keyset position in the dispatcher scan order
// (created_at, id). The zero value starts from the oldest document.
type ScanCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter positions a scan just past doc.
func CursorAfter(doc *Document) ScanCursor {
	return ScanCursor{CreatedAt: doc.CreatedAt, ID: doc.ID}
}

func (c ScanCursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// Precedes reports whether doc sorts at or before the cursor.
func (c ScanCursor) Precedes(doc *Document) bool {
	if c.IsZero() {
		return false
	}
	if !doc.CreatedAt.Equal(c.CreatedAt) {
		return doc.CreatedAt.Before(c.CreatedAt)
	}
	return doc.ID <= c.ID
}

// Clone returns a copy safe to hand out of an in-memory store. Fields values
// are treated as immutable and shared.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.NotifiedAt != nil {
		t := *d.NotifiedAt
		c.NotifiedAt = &t
	}
	return &c
}

// ListFilter narrows a document listing. Zero values mean "any".
type ListFilter struct {
	Kind     Kind
	Status   Status
	Notified *bool
	Limit    int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// EffectiveLimit clamps Limit to (0, MaxListLimit], defaulting when unset.
func (f ListFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Matches applies the filter to one document. Used by the memory store.
func (f ListFilter) Matches(d *Document) bool {
	if f.Kind != "" && d.Kind != f.Kind {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Notified != nil && d.Notified != *f.Notified {
		return false
	}
	return true
}
