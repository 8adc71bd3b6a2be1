package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"approvals/internal/document/models"
)

const documentColumns = `id, kind, number, status, approver_contact, notified, notified_at,
	reason, fields, created_at, last_modified_at`

// dialect isolates the few places PostgreSQL and SQLite differ.
type dialect struct {
	placeholder       func(n int) string
	isUniqueViolation func(err error) bool
}

func dollarPlaceholder(n int) string   { return "$" + strconv.Itoa(n) }
func questionPlaceholder(_ int) string { return "?" }

// sqlStore implements the document store over database/sql. PostgresStore
// and SQLiteStore embed it with their dialect.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

// args builds a positional parameter list and its placeholders.
type args struct {
	d    dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.placeholder(len(a.vals))
}

func (s *sqlStore) newArgs() *args {
	return &args{d: s.d}
}

// Create inserts a new document. A duplicate id or (kind, number) pair is
// reported as ErrConflict.
func (s *sqlStore) Create(ctx context.Context, doc *models.Document) error {
	fields, err := models.EncodeFields(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	a := s.newArgs()
	query := fmt.Sprintf(`INSERT INTO documents (%s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		documentColumns,
		a.add(doc.ID), a.add(string(doc.Kind)), a.add(doc.Number), a.add(string(doc.Status)),
		a.add(doc.ApproverContact), a.add(doc.Notified), a.add(nullTime(doc.NotifiedAt)),
		a.add(doc.Reason), a.add(string(fields)), a.add(doc.CreatedAt.UTC()), a.add(doc.LastModifiedAt.UTC()),
	)
	if _, err := s.db.ExecContext(ctx, query, a.vals...); err != nil {
		if s.d.isUniqueViolation(err) {
			return fmt.Errorf("create document %s: %w", doc.ID, ErrConflict)
		}
		return unavailable("create document", err)
	}
	return nil
}

func (s *sqlStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	a := s.newArgs()
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = %s`, documentColumns, a.add(id))
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, a.vals...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, unavailable("find document", err)
	}
	return doc, nil
}

// List returns documents matching filter, newest first.
func (s *sqlStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error) {
	a := s.newArgs()
	var where []string
	if filter.Kind != "" {
		where = append(where, "kind = "+a.add(string(filter.Kind)))
	}
	if filter.Status != "" {
		where = append(where, "status = "+a.add(string(filter.Status)))
	}
	if filter.Notified != nil {
		where = append(where, "notified = "+a.add(*filter.Notified))
	}
	query := "SELECT " + documentColumns + " FROM documents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + a.add(filter.EffectiveLimit())
	return s.query(ctx, "list documents", query, a.vals...)
}

// ListDispatchable is the dispatcher scan: pending, not yet notified, with a
// contact, oldest first, starting strictly after the cursor. Callers page by
// passing models.CursorAfter on the last document returned.
func (s *sqlStore) ListDispatchable(ctx context.Context, kinds []models.Kind, after models.ScanCursor, limit int) ([]*models.Document, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	a := s.newArgs()
	in := make([]string, len(kinds))
	for i, k := range kinds {
		in[i] = a.add(string(k))
	}
	var page string
	if !after.IsZero() {
		at := after.CreatedAt.UTC()
		page = fmt.Sprintf("\n\t\t  AND (created_at > %s OR (created_at = %s AND id > %s))",
			a.add(at), a.add(at), a.add(after.ID))
	}
	query := fmt.Sprintf(`SELECT %s FROM documents
		WHERE status = 'pending' AND notified = FALSE AND approver_contact <> ''
		  AND kind IN (%s)%s
		ORDER BY created_at ASC, id ASC
		LIMIT %s`, documentColumns, strings.Join(in, ", "), page, a.add(limit))
	return s.query(ctx, "list dispatchable documents", query, a.vals...)
}

// TransitionFromPending moves a pending document to a decision status in one
// guarded UPDATE. When no row changes it reports ErrNotFound or
// ErrInvalidState.
func (s *sqlStore) TransitionFromPending(ctx context.Context, id string, to models.Status, reason string, now time.Time) (*models.Document, error) {
	if !to.IsDecision() {
		return nil, fmt.Errorf("transition to %q: not a decision status", to)
	}
	a := s.newArgs()
	query := fmt.Sprintf(`UPDATE documents
		SET status = %s, reason = %s, last_modified_at = %s
		WHERE id = %s AND status = 'pending'
		RETURNING %s`,
		a.add(string(to)), a.add(reason), a.add(now.UTC()), a.add(id), documentColumns)
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, a.vals...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("transition document", err)
	}
	return nil, s.explainMiss(ctx, id)
}

// UpdateApproverContact corrects the contact of a pending document.
func (s *sqlStore) UpdateApproverContact(ctx context.Context, id, contact string, now time.Time) (*models.Document, error) {
	a := s.newArgs()
	query := fmt.Sprintf(`UPDATE documents
		SET approver_contact = %s, last_modified_at = %s
		WHERE id = %s AND status = 'pending'
		RETURNING %s`,
		a.add(contact), a.add(now.UTC()), a.add(id), documentColumns)
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, a.vals...))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("update approver contact", err)
	}
	return nil, s.explainMiss(ctx, id)
}

// MarkNotified sets notified where it is still false. It reports whether
// this call flipped the flag; a second call is a no-op returning false.
func (s *sqlStore) MarkNotified(ctx context.Context, id string, now time.Time) (bool, error) {
	a := s.newArgs()
	query := fmt.Sprintf(`UPDATE documents
		SET notified = TRUE, notified_at = %s, last_modified_at = %s
		WHERE id = %s AND notified = FALSE`,
		a.add(now.UTC()), a.add(now.UTC()), a.add(id))
	res, err := s.db.ExecContext(ctx, query, a.vals...)
	if err != nil {
		return false, unavailable("mark notified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("mark notified", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// explainMiss tells apart an unknown id from a document in the wrong state
// after a guarded update matched nothing.
func (s *sqlStore) explainMiss(ctx context.Context, id string) error {
	doc, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("document %s is %s: %w", id, doc.Status, ErrInvalidState)
}

func (s *sqlStore) query(ctx context.Context, op, query string, vals ...any) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument decodes one row. Fields are decoded here, once; a corrupt
// payload yields models.InvalidFields instead of an error.
func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc        models.Document
		kind       string
		status     string
		notifiedAt sql.NullTime
		fields     []byte
	)
	err := row.Scan(
		&doc.ID, &kind, &doc.Number, &status, &doc.ApproverContact, &doc.Notified, &notifiedAt,
		&doc.Reason, &fields, &doc.CreatedAt, &doc.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Kind = models.Kind(kind)
	doc.Status = models.Status(status)
	if notifiedAt.Valid {
		t := notifiedAt.Time.UTC()
		doc.NotifiedAt = &t
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.LastModifiedAt = doc.LastModifiedAt.UTC()
	doc.Fields = models.DecodeFields(doc.Kind, fields)
	return &doc, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
