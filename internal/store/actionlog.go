package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/campuscloset/internal/ir"
)

// Dispatch is one action log entry: an invocation, its outcome and the sync
// effects it caused.
type Dispatch struct {
	Invocation ir.Invocation
	Route      string
	Outcome    ir.Outcome
	Elapsed    time.Duration
	Effects    []Effect
}

// Effect is one recorded sync effect.
type Effect struct {
	ID           string
	InvocationID string
	Rule         string
	Index        int
	Concept      string
	Action       string
	Params       ir.IRObject
	Result       ir.IRObject
	ErrorCode    string // empty on success
	Error        string
	Seq          int64
}

// OK reports whether the effect succeeded.
func (e Effect) OK() bool { return e.ErrorCode == "" }

// WriteDispatch records a dispatch atomically. Writing the same invocation
// ID twice is a no-op.
func (s *Store) WriteDispatch(ctx context.Context, d Dispatch) error {
	inv := d.Invocation
	if inv.ID == "" {
		return fmt.Errorf("write dispatch: invocation id is required")
	}

	argsJSON, err := MarshalObject(inv.Args)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	dataJSON, err := MarshalObject(d.Outcome.Data)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO invocations (id, flow_token, action_uri, args, seq, route)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, inv.ID, inv.FlowToken, string(inv.ActionURI), argsJSON, inv.Seq, d.Route)
		if err != nil {
			return fmt.Errorf("write invocation: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("write invocation: rows affected: %w", err)
		} else if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (invocation_id, success, data, error, elapsed_us)
			VALUES (?, ?, ?, ?, ?)
		`, inv.ID, d.Outcome.Success, dataJSON, d.Outcome.Error, d.Elapsed.Microseconds()); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}

		for _, e := range d.Effects {
			if err := writeEffect(ctx, tx, inv.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeEffect(ctx context.Context, tx *sql.Tx, invocationID string, e Effect) error {
	paramsJSON, err := MarshalObject(e.Params)
	if err != nil {
		return fmt.Errorf("write effect: %w", err)
	}
	resultJSON, err := MarshalObject(e.Result)
	if err != nil {
		return fmt.Errorf("write effect: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_effects
		(id, invocation_id, rule, idx, concept, action, params, result, error_code, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, invocationID, e.Rule, e.Index, e.Concept, e.Action, paramsJSON, resultJSON, e.ErrorCode, e.Error, e.Seq)
	if err != nil {
		return fmt.Errorf("write effect %s: %w", e.ID, err)
	}
	return nil
}

const dispatchColumns = `
	i.id, i.flow_token, i.action_uri, i.args, i.seq, i.route,
	o.success, o.data, o.error, o.elapsed_us`

// ReadRecent returns the last limit dispatches, newest first, each with its
// effects.
func (s *Store) ReadRecent(ctx context.Context, limit int) ([]Dispatch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dispatchColumns+`
		FROM invocations i
		JOIN outcomes o ON o.invocation_id = i.id
		ORDER BY i.seq DESC, i.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent dispatches: %w", err)
	}
	return s.collectDispatches(ctx, rows)
}

// ReadFlow returns every dispatch recorded under flowToken in seq order.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dispatchColumns+`
		FROM invocations i
		JOIN outcomes o ON o.invocation_id = i.id
		WHERE i.flow_token = ?
		ORDER BY i.seq ASC, i.id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query flow %s: %w", flowToken, err)
	}
	return s.collectDispatches(ctx, rows)
}

// collectDispatches drains rows before loading effects: the store has a
// single connection, so a second query cannot run while rows is open.
func (s *Store) collectDispatches(ctx context.Context, rows *sql.Rows) ([]Dispatch, error) {
	out := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	rows.Close()

	for i := range out {
		effects, err := s.ReadEffects(ctx, out[i].Invocation.ID)
		if err != nil {
			return nil, err
		}
		out[i].Effects = effects
	}
	return out, nil
}

func scanDispatch(rows *sql.Rows) (Dispatch, error) {
	var (
		d          Dispatch
		actionURI  string
		argsJSON   string
		dataJSON   string
		elapsedUS  int64
		success    bool
	)
	err := rows.Scan(
		&d.Invocation.ID, &d.Invocation.FlowToken, &actionURI, &argsJSON, &d.Invocation.Seq, &d.Route,
		&success, &dataJSON, &d.Outcome.Error, &elapsedUS,
	)
	if err != nil {
		return Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}
	d.Invocation.ActionURI = ir.ActionRef(actionURI)
	if d.Invocation.Args, err = UnmarshalObject(argsJSON); err != nil {
		return Dispatch{}, fmt.Errorf("scan dispatch %s: %w", d.Invocation.ID, err)
	}
	d.Outcome.Success = success
	if d.Outcome.Data, err = UnmarshalObject(dataJSON); err != nil {
		return Dispatch{}, fmt.Errorf("scan dispatch %s: %w", d.Invocation.ID, err)
	}
	if !d.Outcome.Success {
		d.Outcome.Data = nil
	}
	d.Elapsed = time.Duration(elapsedUS) * time.Microsecond
	return d, nil
}

// ReadEffects returns the sync effects recorded for an invocation in seq
// order. Returns an empty slice if there are none.
func (s *Store) ReadEffects(ctx context.Context, invocationID string) ([]Effect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invocation_id, rule, idx, concept, action, params, result, error_code, error, seq
		FROM sync_effects
		WHERE invocation_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	effects := []Effect{}
	for rows.Next() {
		var (
			e          Effect
			paramsJSON string
			resultJSON string
		)
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.Rule, &e.Index, &e.Concept, &e.Action,
			&paramsJSON, &resultJSON, &e.ErrorCode, &e.Error, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		if e.Params, err = UnmarshalObject(paramsJSON); err != nil {
			return nil, fmt.Errorf("scan effect %s: %w", e.ID, err)
		}
		if e.Result, err = UnmarshalObject(resultJSON); err != nil {
			return nil, fmt.Errorf("scan effect %s: %w", e.ID, err)
		}
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return effects, nil
}

// LastSeq returns the highest seq in the action log, or 0 for an empty
// log. The logical clock resumes from here after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM invocations),
			(SELECT COALESCE(MAX(seq), 0) FROM sync_effects)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// ListFlowTokens returns the distinct flow tokens, most recent first.
func (s *Store) ListFlowTokens(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token FROM invocations
		GROUP BY flow_token
		ORDER BY MAX(seq) DESC, flow_token COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list flow tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan flow token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow tokens: %w", err)
	}
	return tokens, nil
}
