// Package snapshot renders the PDF attached to an approval notification.
//
// Rendering is two stages: BuildLayout maps document fields onto a page
// layout, and WritePDF draws it. Output depends only on the document and the
// generation time, which is printed in a labelled footer field.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"approvals/internal/document/models"
	"approvals/pkg/requestcontext"
)

// Artifact is a rendered snapshot ready to attach.
type Artifact struct {
	Filename    string
	ContentType string
	Content     []byte
	GeneratedAt time.Time
}

// RenderError reports that a document could not be rendered. The dispatcher
// leaves such documents unmarked so they are retried next cycle.
type RenderError struct {
	DocumentID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render document %s: %v", e.DocumentID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Renderer produces snapshot artifacts.
type Renderer struct {
	logger *slog.Logger
}

type Option func(*Renderer)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the snapshot of doc. The generation time comes from
// requestcontext.Now so a dispatch cycle stamps all its documents alike.
// Render gives up when ctx ends.
func (r *Renderer) Render(ctx context.Context, doc *models.Document) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{DocumentID: doc.ID, Err: err}
	}
	generatedAt := requestcontext.Now(ctx).UTC().Truncate(time.Second)

	type result struct {
		content []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("pdf engine panic: %v", p)}
			}
		}()
		layout, err := BuildLayout(ctx, r.logger, doc, generatedAt)
		if err != nil {
			done <- result{err: err}
			return
		}
		content, err := WritePDF(layout, generatedAt)
		done <- result{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RenderError{DocumentID: doc.ID, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return nil, &RenderError{DocumentID: doc.ID, Err: res.err}
		}
		return &Artifact{
			Filename:    Filename(doc),
			ContentType: "application/pdf",
			Content:     res.content,
			GeneratedAt: generatedAt,
		}, nil
	}
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename names the attachment after the kind and business number.
func Filename(doc *models.Document) string {
	return string(doc.Kind) + "_" + unsafeFilename.ReplaceAllString(doc.DisplayNumber(), "-") + ".pdf"
}
