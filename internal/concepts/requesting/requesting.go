// Package requesting implements the Requesting concept. It is the gateway
// announced before every excluded route runs, and the sink for log
// effects written by sync rules.
package requesting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/concepts/base"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/store"
)

// Name is the concept name.
const Name = "Requesting"

const defaultLimit = 50

// Requesting owns the request_logs table.
type Requesting struct {
	base.Deps
}

// New creates the concept.
func New(deps base.Deps) *Requesting {
	return &Requesting{Deps: deps}
}

// Concept exposes the actions.
func (r *Requesting) Concept() *concept.Set {
	return concept.NewSet(Name).
		Handle("request", concept.Typed(r.Request)).
		Handle("log", concept.Typed(r.Log)).
		Handle("getRequests", concept.Typed(r.GetRequests))
}

type RequestParams struct {
	Path         string      `json:"path" validate:"required"`
	ActionParams ir.IRObject `json:"actionParams"`
}

type RequestResult struct {
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
	Received  bool   `json:"received"`
}

// Request records an excluded route before it runs.
func (r *Requesting) Request(ctx context.Context, p RequestParams) (RequestResult, error) {
	id, err := r.insert(ctx, entry{kind: "request", path: p.Path, params: p.ActionParams})
	if err != nil {
		return RequestResult{}, err
	}
	r.Logger.Info("request received", "path", p.Path, "request_id", id)
	return RequestResult{RequestID: id, Path: p.Path, Received: true}, nil
}

type LogParams struct {
	Concept string      `json:"concept"`
	Action  string      `json:"action"`
	UserID  string      `json:"userId"`
	Params  ir.IRObject `json:"params"`
}

type LogResult struct {
	RequestID string `json:"requestId"`
}

// Log records a concept action on behalf of a sync rule. A missing userId
// is stored as anonymous.
func (r *Requesting) Log(ctx context.Context, p LogParams) (LogResult, error) {
	if p.Concept == "" || p.Action == "" {
		return LogResult{}, concept.Invalidf("concept and action are required")
	}
	id, err := r.insert(ctx, entry{kind: "log", concept: p.Concept, action: p.Action, userID: p.UserID, params: p.Params})
	if err != nil {
		return LogResult{}, err
	}
	user := p.UserID
	if user == "" {
		user = "anonymous"
	}
	r.Logger.Info("action logged", "concept", p.Concept, "action", p.Action, "user", user)
	return LogResult{RequestID: id}, nil
}

type GetRequestsParams struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

// Entry is one stored request or log record. Fields that do not apply to
// the record's kind are null.
type Entry struct {
	RequestID string      `json:"requestId"`
	Kind      string      `json:"kind"`
	Path      *string     `json:"path"`
	Concept   *string     `json:"concept"`
	Action    *string     `json:"action"`
	UserID    *string     `json:"userId"`
	Params    ir.IRObject `json:"params"`
	Timestamp string      `json:"timestamp"`
}

type RequestsResult struct {
	Requests []Entry `json:"requests"`
}

// GetRequests returns the newest records, optionally for one user.
// Default limit 50.
func (r *Requesting) GetRequests(ctx context.Context, p GetRequestsParams) (RequestsResult, error) {
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, kind, path, concept, action, user_id, params, created_at
		FROM request_logs
		WHERE ? = '' OR user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, p.UserID, p.UserID, p.Limit)
	if err != nil {
		return RequestsResult{}, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e                          Entry
			path, conc, action, userID sql.NullString
			params                     string
		)
		if err := rows.Scan(&e.RequestID, &e.Kind, &path, &conc, &action, &userID, &params, &e.Timestamp); err != nil {
			return RequestsResult{}, fmt.Errorf("scan request: %w", err)
		}
		if e.Params, err = store.UnmarshalObject(params); err != nil {
			return RequestsResult{}, err
		}
		e.Path, e.Concept, e.Action, e.UserID = base.NullString(path), base.NullString(conc), base.NullString(action), base.NullString(userID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return RequestsResult{}, err
	}
	return RequestsResult{Requests: out}, nil
}

type entry struct {
	kind, path, concept, action, userID string
	params                              ir.IRObject
}

func (r *Requesting) insert(ctx context.Context, e entry) (string, error) {
	params, err := store.MarshalObject(e.params)
	if err != nil {
		return "", err
	}
	id := r.NewID()
	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO request_logs (id, kind, path, concept, action, user_id, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, e.kind, nullable(e.path), nullable(e.concept), nullable(e.action), nullable(e.userID), params, r.Timestamp())
	if err != nil {
		return "", fmt.Errorf("insert %s record: %w", e.kind, err)
	}
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
