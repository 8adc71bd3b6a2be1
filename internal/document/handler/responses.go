package handler

import (
	"encoding/json"
	"time"

	"approvals/internal/document/models"
)

// DocumentResponse is the JSON view of a document.
type DocumentResponse struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Number          string          `json:"number"`
	Status          string          `json:"status"`
	StatusCode      int             `json:"status_code"`
	ApproverContact string          `json:"approver_contact"`
	Notified        bool            `json:"notified"`
	Reason          string          `json:"reason,omitempty"`
	Fields          json.RawMessage `json:"fields,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	LastModifiedAt  time.Time       `json:"last_modified_at"`
}

// ListResponse wraps a page of documents.
type ListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
	Count     int                 `json:"count"`
}

func FromDocument(doc *models.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:              doc.ID,
		Kind:            string(doc.Kind),
		Number:          doc.DisplayNumber(),
		Status:          string(doc.Status),
		StatusCode:      doc.Status.LegacyCode(),
		ApproverContact: doc.ApproverContact,
		Notified:        doc.Notified,
		Reason:          doc.Reason,
		CreatedAt:       doc.CreatedAt,
		LastModifiedAt:  doc.LastModifiedAt,
	}
	if doc.Fields != nil {
		if raw, err := models.EncodeFields(doc.Fields); err == nil && json.Valid(raw) {
			resp.Fields = raw
		}
	}
	return resp
}

func FromDocuments(docs []*models.Document) *ListResponse {
	out := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, FromDocument(d))
	}
	return &ListResponse{Documents: out, Count: len(out)}
}
