package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"approvals/internal/audit"
	"approvals/internal/document/metrics"
	"approvals/internal/document/models"
	"approvals/internal/document/store"
	"approvals/pkg/attrs"
	dErrors "approvals/pkg/domain-errors"
	"approvals/pkg/email"
	"approvals/pkg/requestcontext"
)

// Store is the persistence the state machine needs. Transitions are a single
// conditional write so two racing decisions cannot both succeed.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error)
	TransitionFromPending(ctx context.Context, id string, to models.Status, reason string, now time.Time) (*models.Document, error)
	UpdateApproverContact(ctx context.Context, id, contact string, now time.Time) (*models.Document, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service applies the approval lifecycle: documents are created Pending and
// move exactly once to Approved or Rejected.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	newID          func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator overrides uuid generation for new documents.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(st Store, opts ...Option) *Service {
	s := &Service{store: st, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new Pending document.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, err := models.NewDocument(s.newID(), req.ParsedKind(), req.Number, req.ApproverContact, req.ParsedFields(), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	if err := s.store.Create(ctx, doc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a document with this number already exists")
		}
		return nil, translate(err, "failed to create document")
	}

	s.logAudit(ctx, audit.EventDocumentCreated,
		"document_id", doc.ID,
		"kind", string(doc.Kind),
		"status", string(doc.Status),
	)
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(doc.Kind))
	}
	return doc, nil
}

// Approve moves a Pending document to Approved. A non-blank note is kept as
// the document reason.
func (s *Service) Approve(ctx context.Context, id, note string) (*models.Document, error) {
	return s.decide(ctx, id, models.StatusApproved, strings.TrimSpace(note))
}

// Reject moves a Pending document to Rejected. The reason is mandatory and
// is checked before the store is touched.
func (s *Service) Reject(ctx context.Context, id, reason string) (*models.Document, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a reason is required to reject a document")
	}
	return s.decide(ctx, id, models.StatusRejected, reason)
}

func (s *Service) decide(ctx context.Context, id string, to models.Status, reason string) (*models.Document, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveDecision(start)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document id is required")
	}

	doc, err := s.store.TransitionFromPending(ctx, id, to, reason, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, store.ErrInvalidState) && s.metrics != nil {
			s.metrics.IncrementConflict()
		}
		return nil, translate(err, "failed to update document")
	}

	event := audit.EventDocumentApproved
	if to == models.StatusRejected {
		event = audit.EventDocumentRejected
	}
	s.logAudit(ctx, event,
		"document_id", doc.ID,
		"kind", string(doc.Kind),
		"status", string(doc.Status),
		"reason", doc.Reason,
	)
	if s.metrics != nil {
		s.metrics.IncrementDecision(string(doc.Kind), string(doc.Status))
	}
	return doc, nil
}

// Reassign replaces the approver contact of a Pending document. A document
// already notified keeps its notified flag; the new approver is reached
// through a fresh submission, not a resend.
func (s *Service) Reassign(ctx context.Context, id, contact string) (*models.Document, error) {
	id = strings.TrimSpace(id)
	contact = strings.TrimSpace(contact)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document id is required")
	}
	if contact == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "approver_contact is required")
	}
	if !email.IsValid(contact) {
		return nil, dErrors.New(dErrors.CodeValidation, "approver_contact must be an email address")
	}

	doc, err := s.store.UpdateApproverContact(ctx, id, contact, requestcontext.Now(ctx))
	if err != nil {
		return nil, translate(err, "failed to reassign document")
	}
	s.logAudit(ctx, audit.EventDocumentReassigned,
		"document_id", doc.ID,
		"kind", string(doc.Kind),
		"status", string(doc.Status),
		"approver", doc.ApproverContact,
	)
	return doc, nil
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document id is required")
	}
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load document")
	}
	return doc, nil
}

// List returns documents matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error) {
	filter.Limit = filter.EffectiveLimit()
	docs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "failed to list documents")
	}
	return docs, nil
}

// translate maps store sentinels onto domain error codes.
func translate(err error, internalMsg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, store.ErrInvalidState):
		return dErrors.New(dErrors.CodeAlreadyProcessed, "document has already been processed")
	case errors.Is(err, store.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "document already exists")
	case errors.Is(err, store.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.EventType, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Type:       event,
		DocumentID: attrs.String(attributes, "document_id"),
		Kind:       attrs.String(attributes, "kind"),
		Status:     attrs.String(attributes, "status"),
		Reason:     attrs.String(attributes, "reason"),
		Approver:   attrs.String(attributes, "approver"),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
