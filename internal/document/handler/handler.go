package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"approvals/internal/document/models"
	"approvals/internal/platform/middleware"
	dErrors "approvals/pkg/domain-errors"
	"approvals/pkg/platform/httputil"
	"approvals/pkg/requestcontext"
)

// Service is the state machine behind the action surface.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest) (*models.Document, error)
	Approve(ctx context.Context, id, note string) (*models.Document, error)
	Reject(ctx context.Context, id, reason string) (*models.Document, error)
	Reassign(ctx context.Context, id, contact string) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error)
}

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Handler serves the approver action links and the JSON document API.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the action pages and the API on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/action/{kind}/{action}", h.HandleActionPage)
	r.Post("/action/{kind}/{action}", h.HandleActionSubmit)

	r.Route("/api/documents", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/reject", h.HandleReject)
		r.Put("/{id}/approver", h.HandleReassign)
	})
}

// HandleCreate handles POST /api/documents.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	doc, err := h.service.Create(ctx, req)
	if err != nil {
		h.logFailure(ctx, "document create failed", "", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "document created",
		"request_id", requestID,
		"document_id", doc.ID,
		"kind", doc.Kind,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromDocument(doc))
}

// HandleList handles GET /api/documents.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.service.List(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "document list failed", "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocuments(docs))
}

// HandleGet handles GET /api/documents/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	doc, err := h.service.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "document lookup failed", id, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleApprove handles POST /api/documents/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[models.DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	h.writeDecision(w, r, ActionApprove, req.Note)
}

// HandleReject handles POST /api/documents/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[models.DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.Reason == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "a reason is required to reject a document"))
		return
	}
	h.writeDecision(w, r, ActionReject, req.Reason)
}

func (h *Handler) writeDecision(w http.ResponseWriter, r *http.Request, action Action, text string) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	start := time.Now()

	doc, err := h.decide(ctx, id, action, text)
	if err != nil {
		h.logFailure(ctx, "document decision failed", id, err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "document decided",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", doc.ID,
		"kind", doc.Kind,
		"status", doc.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleReassign handles PUT /api/documents/{id}/approver.
func (h *Handler) HandleReassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id := chi.URLParam(r, "id")
	req, ok := httputil.DecodeAndPrepare[models.ReassignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	doc, err := h.service.Reassign(ctx, id, req.ApproverContact)
	if err != nil {
		h.logFailure(ctx, "document reassign failed", id, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

type confirmPage struct {
	Verb          string
	KindLabel     string
	Number        string
	Requester     string
	Department    string
	RequestDate   string
	Status        string
	Action        string
	RequireReason bool
}

type resultPage struct {
	Title   string
	Message string
}

// HandleActionPage handles GET /action/{kind}/{action}?id=. It only shows a
// confirmation form; mail scanners that prefetch links change nothing.
func (h *Handler) HandleActionPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	action, doc, ok := h.loadActionTarget(w, r)
	if !ok {
		return
	}
	if !doc.IsPending() {
		h.renderResult(w, http.StatusConflict, "Already processed",
			doc.Kind.Label()+" "+doc.DisplayNumber()+" has already been "+string(doc.Status)+".")
		return
	}

	var summary models.Summary
	if doc.Fields != nil {
		summary = doc.Fields.Summary()
	}
	page := confirmPage{
		Verb:          verb(action),
		KindLabel:     doc.Kind.Label(),
		Number:        doc.DisplayNumber(),
		Requester:     summary.Requester,
		Department:    summary.Department,
		RequestDate:   summary.RequestDate.String(),
		Status:        string(doc.Status),
		Action:        r.URL.RequestURI(),
		RequireReason: action == ActionReject,
	}
	h.render(ctx, w, http.StatusOK, "confirm.html", page)
}

// HandleActionSubmit handles POST /action/{kind}/{action}?id= from the
// confirmation form.
func (h *Handler) HandleActionSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.renderResult(w, http.StatusBadRequest, "Invalid request", "The form could not be read.")
		return
	}
	action, ok := parseAction(chi.URLParam(r, "action"))
	if !ok {
		h.renderResult(w, http.StatusNotFound, "Not found", "Unknown action.")
		return
	}
	text := r.PostForm.Get("note")
	if action == ActionReject {
		text = r.PostForm.Get("reason")
		if models.IsBlank(text) {
			h.renderResult(w, http.StatusBadRequest, "Reason required", "Please give a reason for the rejection.")
			return
		}
	}

	_, doc, ok := h.loadActionTarget(w, r)
	if !ok {
		return
	}
	decided, err := h.decide(ctx, doc.ID, action, text)
	if err != nil {
		h.logFailure(ctx, "action link decision failed", doc.ID, err)
		h.renderError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "document decided via action link",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", decided.ID,
		"kind", decided.Kind,
		"status", decided.Status,
	)
	h.renderResult(w, http.StatusOK, "Done",
		decided.Kind.Label()+" "+decided.DisplayNumber()+" has been "+string(decided.Status)+".")
}

// loadActionTarget resolves kind, action and id of an action link. The
// document must exist and be of the kind named in the path.
func (h *Handler) loadActionTarget(w http.ResponseWriter, r *http.Request) (Action, *models.Document, bool) {
	ctx := r.Context()
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.renderResult(w, http.StatusNotFound, "Not found", "Unknown document type.")
		return "", nil, false
	}
	action, ok := parseAction(chi.URLParam(r, "action"))
	if !ok {
		h.renderResult(w, http.StatusNotFound, "Not found", "Unknown action.")
		return "", nil, false
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		h.renderResult(w, http.StatusBadRequest, "Invalid link", "The link is missing the document id.")
		return "", nil, false
	}
	doc, err := h.service.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "action link lookup failed", id, err)
		h.renderError(w, err)
		return "", nil, false
	}
	if doc.Kind != kind {
		h.renderResult(w, http.StatusNotFound, "Not found", "No such document.")
		return "", nil, false
	}
	return action, doc, true
}

func (h *Handler) decide(ctx context.Context, id string, action Action, text string) (*models.Document, error) {
	if action == ActionReject {
		return h.service.Reject(ctx, id, text)
	}
	return h.service.Approve(ctx, id, text)
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := httputil.StatusFor(code)
	switch code {
	case dErrors.CodeNotFound:
		h.renderResult(w, status, "Not found", "No such document.")
	case dErrors.CodeAlreadyProcessed:
		h.renderResult(w, status, "Already processed", "This document has already been processed.")
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		h.renderResult(w, status, "Invalid request", dErrors.MessageOf(err))
	case dErrors.CodeUnavailable:
		h.renderResult(w, status, "Try again later", "The service is temporarily unavailable.")
	default:
		h.renderResult(w, status, "Error", "Something went wrong.")
	}
}

func (h *Handler) renderResult(w http.ResponseWriter, status int, title, message string) {
	h.render(context.Background(), w, status, "result.html", resultPage{Title: title, Message: message})
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to render page", "template", name, "error", err)
	}
}

func (h *Handler) logFailure(ctx context.Context, msg, documentID string, err error) {
	level := slog.LevelWarn
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"document_id", documentID,
		"error", err,
	)
}

func verb(a Action) string {
	if a == ActionReject {
		return "Reject"
	}
	return "Approve"
}
