package models

import (
	"encoding/json"
	"strings"

	dErrors "approvals/pkg/domain-errors"
)

// CreateRequest is the submission of a new document.
type CreateRequest struct {
	Kind            string          `json:"kind"`
	Number          string          `json:"number"`
	ApproverContact string          `json:"approver_contact"`
	Fields          json.RawMessage `json:"fields"`

	parsedKind   Kind
	parsedFields Fields
}

// Normalize trims identifiers. Text inside the payload is normalised once
// it has been parsed by Validate.
func (r *CreateRequest) Normalize() {
	r.Kind = strings.TrimSpace(r.Kind)
	r.Number = normalizeText(r.Number)
	r.ApproverContact = strings.TrimSpace(r.ApproverContact)
}

// Validate checks the request and parses the payload for its kind. The
// approver contact is deliberately not validated: documents with a bad
// contact are stored and simply never dispatched.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()

	kind, err := ParseKind(r.Kind)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "kind must be one of purchase_requisition, job_work_report")
	}
	if len(r.Number) > MaxNumberLength {
		return dErrors.New(dErrors.CodeValidation, "number is too long")
	}
	fields, err := ParseFields(kind, r.Fields)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "fields do not match the document kind")
	}
	NormalizeFields(fields)

	r.parsedKind = kind
	r.parsedFields = fields
	return nil
}

// ParsedKind returns the kind validated by Validate.
func (r *CreateRequest) ParsedKind() Kind {
	return r.parsedKind
}

// ParsedFields returns the payload decoded by Validate.
func (r *CreateRequest) ParsedFields() Fields {
	return r.parsedFields
}

// DecisionRequest carries the optional note of an approval or the
// mandatory reason of a rejection.
type DecisionRequest struct {
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Note = strings.TrimSpace(r.Note)
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// ReassignRequest corrects the approver contact of a pending document.
type ReassignRequest struct {
	ApproverContact string `json:"approver_contact"`
}

func (r *ReassignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ApproverContact = strings.TrimSpace(r.ApproverContact)
	if r.ApproverContact == "" {
		return dErrors.New(dErrors.CodeValidation, "approver_contact is required")
	}
	return nil
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
