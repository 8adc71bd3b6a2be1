package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"approvals/internal/document/handler/mocks"
	"approvals/internal/document/models"
	dErrors "approvals/pkg/domain-errors"
	"approvals/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	router      chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.router = chi.NewRouter()
	New(s.mockService, logger).Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func pendingPR(id string) *models.Document {
	now := time.Date(2025, 4, 8, 9, 30, 0, 0, time.UTC)
	return &models.Document{
		ID:              id,
		Kind:            models.KindPurchaseRequisition,
		Number:          "MG/IN-0042",
		Status:          models.StatusPending,
		ApproverContact: "a@x.example",
		Fields:          &models.PurchaseRequisition{EmployeeName: "R. Shah", Department: "Utility"},
		CreatedAt:       now,
		LastModifiedAt:  now,
	}
}

func decided(doc *models.Document, status models.Status, reason string) *models.Document {
	c := doc.Clone()
	c.Status = status
	c.Reason = reason
	return c
}

func (s *HandlerSuite) TestActionPage() {
	s.Run("pending document shows the confirmation form", func() {
		doc := pendingPR("d-1")
		s.mockService.EXPECT().Get(gomock.Any(), "d-1").Return(doc, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/reject?id=d-1"))
		s.Equal(http.StatusOK, rr.Code)
		body := rr.Body.String()
		s.Contains(body, "Reject Purchase Requisition MG/IN-0042")
		s.Contains(body, `name="reason"`)
		s.Contains(body, "R. Shah")
	})

	s.Run("GET never changes state", func() {
		doc := pendingPR("d-2")
		s.mockService.EXPECT().Get(gomock.Any(), "d-2").Return(doc, nil)
		// no Approve/Reject expectation: a call would fail the test

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/approve?id=d-2"))
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), `name="note"`)
	})

	s.Run("processed document renders conflict", func() {
		doc := decided(pendingPR("d-3"), models.StatusApproved, "")
		s.mockService.EXPECT().Get(gomock.Any(), "d-3").Return(doc, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/approve?id=d-3"))
		s.Equal(http.StatusConflict, rr.Code)
		s.Contains(rr.Body.String(), "already been approved")
	})

	s.Run("kind mismatch is not found", func() {
		s.mockService.EXPECT().Get(gomock.Any(), "d-4").Return(pendingPR("d-4"), nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/job_work_report/approve?id=d-4"))
		s.Equal(http.StatusNotFound, rr.Code)
	})

	s.Run("unknown kind or action is not found", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/travel_claim/approve?id=d-1"))
		s.Equal(http.StatusNotFound, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/delete?id=d-1"))
		s.Equal(http.StatusNotFound, rr.Code)
	})

	s.Run("missing id is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/approve"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("unknown id is not found", func() {
		s.mockService.EXPECT().Get(gomock.Any(), "nope").Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/action/purchase_requisition/approve?id=nope"))
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *HandlerSuite) TestActionSubmit() {
	s.Run("approve through the form", func() {
		doc := pendingPR("d-1")
		s.mockService.EXPECT().Get(gomock.Any(), "d-1").Return(doc, nil)
		s.mockService.EXPECT().Approve(gomock.Any(), "d-1", "fine").Return(decided(doc, models.StatusApproved, "fine"), nil)

		req := testutil.NewFormRequest(s.T(), http.MethodPost, "/action/purchase_requisition/approve?id=d-1", url.Values{"note": {"fine"}})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusOK, rr.Code)
		s.Contains(rr.Body.String(), "has been approved")
	})

	s.Run("reject with blank reason never reaches the service", func() {
		req := testutil.NewFormRequest(s.T(), http.MethodPost, "/action/purchase_requisition/reject?id=d-1", url.Values{"reason": {"  "}})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Contains(rr.Body.String(), "Reason required")
	})

	s.Run("losing a race renders conflict", func() {
		doc := pendingPR("d-2")
		s.mockService.EXPECT().Get(gomock.Any(), "d-2").Return(doc, nil)
		s.mockService.EXPECT().Reject(gomock.Any(), "d-2", "over budget").
			Return(nil, dErrors.New(dErrors.CodeAlreadyProcessed, "document has already been processed"))

		req := testutil.NewFormRequest(s.T(), http.MethodPost, "/action/purchase_requisition/reject?id=d-2", url.Values{"reason": {"over budget"}})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusConflict, rr.Code)
	})

	s.Run("store outage renders unavailable", func() {
		s.mockService.EXPECT().Get(gomock.Any(), "d-3").Return(nil, dErrors.New(dErrors.CodeUnavailable, "document store unavailable"))
		req := testutil.NewFormRequest(s.T(), http.MethodPost, "/action/purchase_requisition/approve?id=d-3", url.Values{})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}

func (s *HandlerSuite) TestAPI() {
	s.Run("create returns 201", func() {
		doc := pendingPR("d-1")
		s.mockService.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *models.CreateRequest) (*models.Document, error) {
				s.Equal(models.KindPurchaseRequisition, req.ParsedKind())
				return doc, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/documents", map[string]any{
			"kind":             "purchase_requisition",
			"approver_contact": "a@x.example",
			"fields":           map[string]any{"employee_name": "R. Shah"},
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[DocumentResponse](s.T(), rr)
		s.Equal("d-1", resp.ID)
		s.Equal("pending", resp.Status)
		s.Equal(2, resp.StatusCode)
		s.JSONEq(`{"employee_name":"R. Shah","department":"Utility"}`, string(resp.Fields))
	})

	s.Run("create with unknown kind is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/documents", map[string]any{"kind": "travel_claim"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed JSON is a bad request", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("non-JSON writes are refused", func() {
		req := testutil.NewFormRequest(s.T(), http.MethodPost, "/api/documents", url.Values{"kind": {"job_work_report"}})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusUnsupportedMediaType, rr.Code)
	})

	s.Run("get maps not found", func() {
		s.mockService.EXPECT().Get(gomock.Any(), "missing").Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/documents/missing"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("list parses filters", func() {
		notified := false
		s.mockService.EXPECT().List(gomock.Any(), models.ListFilter{
			Kind:     models.KindJobWorkReport,
			Status:   models.StatusPending,
			Notified: &notified,
			Limit:    10,
		}).Return([]*models.Document{}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/api/documents?kind=job_work_report&status=pending&notified=false&limit=10"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "count", float64(0))
	})

	s.Run("list rejects a bad filter", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/documents?status=archived"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("approve with empty body", func() {
		doc := pendingPR("d-1")
		s.mockService.EXPECT().Approve(gomock.Any(), "d-1", "").Return(decided(doc, models.StatusApproved, ""), nil)
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/documents/d-1/approve", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "status", "approved")
	})

	s.Run("reject without reason is refused before the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/documents/d-1/reject", map[string]string{"reason": " "}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("second decision is a conflict", func() {
		s.mockService.EXPECT().Reject(gomock.Any(), "d-1", "late").
			Return(nil, dErrors.New(dErrors.CodeAlreadyProcessed, "document has already been processed"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/documents/d-1/reject", map[string]string{"reason": "late"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_processed")
	})

	s.Run("internal errors hide their description", func() {
		s.mockService.EXPECT().Get(gomock.Any(), "d-9").Return(nil, dErrors.New(dErrors.CodeInternal, "failed to load document"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/documents/d-9"))
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("internal_error", body["error"])
		s.NotContains(body, "error_description")
	})

	s.Run("reassign", func() {
		doc := pendingPR("d-1")
		updated := doc.Clone()
		updated.ApproverContact = "b@x.example"
		s.mockService.EXPECT().Reassign(gomock.Any(), "d-1", "b@x.example").Return(updated, nil)
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/documents/d-1/approver", map[string]string{"approver_contact": " b@x.example"}))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "approver_contact", "b@x.example")
	})
}
