package handler

import (
	"net/url"
	"strconv"
	"strings"

	"approvals/internal/document/models"
	dErrors "approvals/pkg/domain-errors"
)

// Action is the decision carried by an action link.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func parseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionApprove, ActionReject:
		return Action(s), true
	default:
		return "", false
	}
}

// parseListFilter reads kind, status, notified and limit from a query string.
func parseListFilter(q url.Values) (models.ListFilter, error) {
	var f models.ListFilter
	if v := strings.TrimSpace(q.Get("kind")); v != "" {
		kind, err := models.ParseKind(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "invalid kind")
		}
		f.Kind = kind
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "invalid status")
		}
		f.Status = status
	}
	if v := strings.TrimSpace(q.Get("notified")); v != "" {
		notified, err := strconv.ParseBool(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "notified must be true or false")
		}
		f.Notified = &notified
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = limit
	}
	return f, nil
}
