package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"approvals/internal/document/models"
	"approvals/internal/document/store"
	"approvals/internal/platform/database"
	"approvals/pkg/platform/sentinel"
)

// documentStore is the full surface shared by every implementation.
type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error)
	ListDispatchable(ctx context.Context, kinds []models.Kind, after models.ScanCursor, limit int) ([]*models.Document, error)
	TransitionFromPending(ctx context.Context, id string, to models.Status, reason string, now time.Time) (*models.Document, error)
	UpdateApproverContact(ctx context.Context, id, contact string, now time.Time) (*models.Document, error)
	MarkNotified(ctx context.Context, id string, now time.Time) (bool, error)
}

var (
	_ documentStore = (*store.InMemory)(nil)
	_ documentStore = (*store.PostgresStore)(nil)
	_ documentStore = (*store.SQLiteStore)(nil)
)

// DocumentStoreSuite is run against every implementation.
type DocumentStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) documentStore
	store    documentStore
	ctx      context.Context
	base     time.Time
}

func (s *DocumentStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
	s.base = time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &DocumentStoreSuite{newStore: func(t *testing.T) documentStore {
		return store.NewInMemory()
	}})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &DocumentStoreSuite{newStore: func(t *testing.T) documentStore {
		t.Helper()
		db, err := database.OpenSQLite(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		s := store.NewSQLite(db)
		require.NoError(t, s.Migrate(context.Background()))
		require.NoError(t, s.Migrate(context.Background()), "migrate is idempotent")
		return s
	}})
}

func (s *DocumentStoreSuite) newDoc(contact string, offset time.Duration) *models.Document {
	fields := &models.PurchaseRequisition{
		EmployeeName: "K. Barot",
		Items:        []models.RequisitionItem{{ItemCode: "MC725001", Rate: "87500.00", Quantity: "1"}},
	}
	doc, err := models.NewDocument(uuid.NewString(), models.KindPurchaseRequisition, "", contact, fields, s.base.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, doc))
	return doc
}

func (s *DocumentStoreSuite) TestCreateAndFind() {
	s.Run("round-trips every column", func() {
		doc := s.newDoc("approver@plant.example", 0)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(doc.ID, found.ID)
		s.Equal(models.KindPurchaseRequisition, found.Kind)
		s.Equal(models.StatusPending, found.Status)
		s.Equal("approver@plant.example", found.ApproverContact)
		s.False(found.Notified)
		s.Nil(found.NotifiedAt)
		s.True(s.base.Equal(found.CreatedAt))

		fields, ok := found.Fields.(*models.PurchaseRequisition)
		s.Require().True(ok, "fields decoded at the store boundary")
		s.Equal("K. Barot", fields.EmployeeName)
		s.Equal(models.RawValue("87500.00"), fields.Items[0].Rate)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, uuid.NewString())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id and duplicate number per kind", func() {
		doc := s.newDoc("", 0)
		s.Require().ErrorIs(s.store.Create(s.ctx, doc), sentinel.ErrConflict)

		first, err := models.NewDocument(uuid.NewString(), models.KindJobWorkReport, "JCWIP-1", "", &models.JobWorkReport{}, s.base)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Create(s.ctx, first))

		dup, err := models.NewDocument(uuid.NewString(), models.KindJobWorkReport, "JCWIP-1", "", &models.JobWorkReport{}, s.base)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)

		otherKind, err := models.NewDocument(uuid.NewString(), models.KindPurchaseRequisition, "JCWIP-1", "", &models.PurchaseRequisition{}, s.base)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Create(s.ctx, otherKind), "numbers are unique per kind")
	})
}

func (s *DocumentStoreSuite) TestTransitionFromPending() {
	s.Run("applies the decision once", func() {
		doc := s.newDoc("", 0)
		later := s.base.Add(time.Hour)

		updated, err := s.store.TransitionFromPending(s.ctx, doc.ID, models.StatusRejected, "budget exceeded", later)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, updated.Status)
		s.Equal("budget exceeded", updated.Reason)
		s.True(later.Equal(updated.LastModifiedAt))

		_, err = s.store.TransitionFromPending(s.ctx, doc.ID, models.StatusApproved, "", later)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, found.Status, "second decision changed nothing")
		s.Equal("budget exceeded", found.Reason)
	})

	s.Run("distinguishes unknown ids", func() {
		_, err := s.store.TransitionFromPending(s.ctx, uuid.NewString(), models.StatusApproved, "", s.base)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("refuses non-decision targets", func() {
		doc := s.newDoc("", 0)
		_, err := s.store.TransitionFromPending(s.ctx, doc.ID, models.StatusDraft, "", s.base)
		s.Require().Error(err)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})
}

// TestConcurrentDecisionsSingleWinner races approve against reject on the
// same document; exactly one must win.
func (s *DocumentStoreSuite) TestConcurrentDecisionsSingleWinner() {
	const rounds = 20
	for i := 0; i < rounds; i++ {
		doc := s.newDoc("", 0)

		var wins, lost atomic.Int32
		var wg sync.WaitGroup
		for _, to := range []models.Status{models.StatusApproved, models.StatusRejected} {
			wg.Add(1)
			go func(to models.Status) {
				defer wg.Done()
				_, err := s.store.TransitionFromPending(s.ctx, doc.ID, to, "reason", s.base)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, sentinel.ErrInvalidState):
					lost.Add(1)
				}
			}(to)
		}
		wg.Wait()

		s.Equal(int32(1), wins.Load(), "round %d", i)
		s.Equal(int32(1), lost.Load(), "round %d", i)
	}
}

func (s *DocumentStoreSuite) TestListDispatchable() {
	eligible := s.newDoc("approver@plant.example", 2*time.Minute)
	older := s.newDoc("approver@plant.example", time.Minute)
	s.newDoc("", 3*time.Minute)

	notified := s.newDoc("approver@plant.example", 4*time.Minute)
	_, err := s.store.MarkNotified(s.ctx, notified.ID, s.base)
	s.Require().NoError(err)

	approved := s.newDoc("approver@plant.example", 5*time.Minute)
	_, err = s.store.TransitionFromPending(s.ctx, approved.ID, models.StatusApproved, "", s.base)
	s.Require().NoError(err)

	jwr, err := models.NewDocument(uuid.NewString(), models.KindJobWorkReport, "", "approver@plant.example", &models.JobWorkReport{}, s.base)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, jwr))

	s.Run("returns only pending, unnotified documents with a contact, oldest first", func() {
		docs, err := s.store.ListDispatchable(s.ctx, []models.Kind{models.KindPurchaseRequisition}, models.ScanCursor{}, 10)
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(older.ID, docs[0].ID)
		s.Equal(eligible.ID, docs[1].ID)
	})

	s.Run("honours kinds and limit", func() {
		docs, err := s.store.ListDispatchable(s.ctx, []models.Kind{models.KindJobWorkReport}, models.ScanCursor{}, 10)
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal(jwr.ID, docs[0].ID)

		docs, err = s.store.ListDispatchable(s.ctx, models.Kinds(), models.ScanCursor{}, 1)
		s.Require().NoError(err)
		s.Len(docs, 1)

		docs, err = s.store.ListDispatchable(s.ctx, nil, models.ScanCursor{}, 10)
		s.Require().NoError(err)
		s.Empty(docs)
	})

	s.Run("pages strictly after the cursor", func() {
		kinds := []models.Kind{models.KindPurchaseRequisition}
		first, err := s.store.ListDispatchable(s.ctx, kinds, models.ScanCursor{}, 1)
		s.Require().NoError(err)
		s.Require().Len(first, 1)
		s.Equal(older.ID, first[0].ID)

		second, err := s.store.ListDispatchable(s.ctx, kinds, models.CursorAfter(first[0]), 1)
		s.Require().NoError(err)
		s.Require().Len(second, 1)
		s.Equal(eligible.ID, second[0].ID)

		rest, err := s.store.ListDispatchable(s.ctx, kinds, models.CursorAfter(second[0]), 1)
		s.Require().NoError(err)
		s.Empty(rest)
	})
}

func (s *DocumentStoreSuite) TestListDispatchable_TiesOnCreatedAtBreakByID() {
	a := s.newDoc("approver@plant.example", time.Minute)
	b := s.newDoc("approver@plant.example", time.Minute)
	if b.ID < a.ID {
		a, b = b, a
	}
	kinds := []models.Kind{models.KindPurchaseRequisition}

	page, err := s.store.ListDispatchable(s.ctx, kinds, models.CursorAfter(a), 10)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(b.ID, page[0].ID)
}

func (s *DocumentStoreSuite) TestMarkNotified() {
	s.Run("is idempotent and monotonic", func() {
		doc := s.newDoc("approver@plant.example", 0)
		first := s.base.Add(time.Minute)

		changed, err := s.store.MarkNotified(s.ctx, doc.ID, first)
		s.Require().NoError(err)
		s.True(changed)

		changed, err = s.store.MarkNotified(s.ctx, doc.ID, first.Add(time.Minute))
		s.Require().NoError(err)
		s.False(changed)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.True(found.Notified)
		s.Require().NotNil(found.NotifiedAt)
		s.True(first.Equal(*found.NotifiedAt), "second mark left the timestamp alone")
	})

	s.Run("decisions never clear the flag", func() {
		doc := s.newDoc("approver@plant.example", 0)
		_, err := s.store.MarkNotified(s.ctx, doc.ID, s.base)
		s.Require().NoError(err)

		_, err = s.store.TransitionFromPending(s.ctx, doc.ID, models.StatusApproved, "", s.base)
		s.Require().NoError(err)

		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.True(found.Notified)
		s.Equal(models.StatusApproved, found.Status)
	})

	s.Run("reports unknown ids", func() {
		_, err := s.store.MarkNotified(s.ctx, uuid.NewString(), s.base)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("only one of many concurrent marks flips the flag", func() {
		doc := s.newDoc("approver@plant.example", 0)
		var flips atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if changed, err := s.store.MarkNotified(s.ctx, doc.ID, s.base); err == nil && changed {
					flips.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), flips.Load())
	})
}

func (s *DocumentStoreSuite) TestUpdateApproverContact() {
	doc := s.newDoc("not-an-email", 0)

	updated, err := s.store.UpdateApproverContact(s.ctx, doc.ID, "approver@plant.example", s.base.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal("approver@plant.example", updated.ApproverContact)

	_, err = s.store.TransitionFromPending(s.ctx, doc.ID, models.StatusApproved, "", s.base)
	s.Require().NoError(err)

	_, err = s.store.UpdateApproverContact(s.ctx, doc.ID, "other@plant.example", s.base)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.UpdateApproverContact(s.ctx, uuid.NewString(), "other@plant.example", s.base)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *DocumentStoreSuite) TestList() {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.newDoc(fmt.Sprintf("a%d@plant.example", i), time.Duration(i)*time.Minute).ID)
	}
	_, err := s.store.TransitionFromPending(s.ctx, ids[1], models.StatusApproved, "", s.base)
	s.Require().NoError(err)
	_, err = s.store.MarkNotified(s.ctx, ids[2], s.base)
	s.Require().NoError(err)

	s.Run("newest first with limit", func() {
		docs, err := s.store.List(s.ctx, models.ListFilter{Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(ids[4], docs[0].ID)
		s.Equal(ids[3], docs[1].ID)
	})

	s.Run("filters by status and notified", func() {
		docs, err := s.store.List(s.ctx, models.ListFilter{Status: models.StatusApproved})
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal(ids[1], docs[0].ID)

		yes := true
		docs, err = s.store.List(s.ctx, models.ListFilter{Notified: &yes})
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal(ids[2], docs[0].ID)

		docs, err = s.store.List(s.ctx, models.ListFilter{Kind: models.KindJobWorkReport})
		s.Require().NoError(err)
		s.Empty(docs)
	})
}
