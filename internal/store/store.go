// Package store archives committed negotiation turns. Postgres is used in
// deployments, SQLite for local runs.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
)

// TurnRow is an archived turn as read back from storage. A session id can
// span several conversations; Number restarts at 1 in each.
type TurnRow struct {
	ConversationID   string    `json:"conversation_id"`
	Number           int       `json:"number"`
	CandidateMessage string    `json:"candidate_message"`
	AgentReply       string    `json:"agent_reply"`
	Limit            int       `json:"limit"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// OfferRow is an archived offer with the conversation it belongs to.
type OfferRow struct {
	ConversationID string `json:"conversation_id"`
	graph.OfferRecord
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS negotiation_turns (
	id                UUID PRIMARY KEY,
	session_id        TEXT NOT NULL,
	conversation_id   UUID NOT NULL,
	turn              INTEGER NOT NULL,
	candidate_message TEXT NOT NULL,
	agent_reply       TEXT NOT NULL,
	limit_amount      INTEGER NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_id, turn)
);
CREATE INDEX IF NOT EXISTS idx_negotiation_turns_session ON negotiation_turns (session_id, recorded_at);
CREATE TABLE IF NOT EXISTS negotiation_offers (
	id              UUID PRIMARY KEY,
	session_id      TEXT NOT NULL,
	conversation_id UUID NOT NULL,
	offer_id        INTEGER NOT NULL,
	turn            INTEGER NOT NULL,
	offered_by      TEXT NOT NULL,
	details         JSONB NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_id, offer_id)
);
CREATE INDEX IF NOT EXISTS idx_negotiation_offers_session ON negotiation_offers (session_id, created_at);
`

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the archive tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// RecordTurn upserts a turn and the offers it touched in one transaction.
// Rows are keyed by conversation, so a reused session id never overwrites
// an earlier conversation. Re-recording a turn replaces its content; offers
// are keyed by their handle so later status changes overwrite earlier rows.
func (s *Store) RecordTurn(ctx context.Context, sessionID, conversationID string, turn graph.Turn, limit int, offers []graph.OfferRecord) error {
	conv, err := uuid.Parse(conversationID)
	if err != nil {
		return fmt.Errorf("parse conversation id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO negotiation_turns (id, session_id, conversation_id, turn, candidate_message, agent_reply, limit_amount, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (conversation_id, turn) DO UPDATE
		SET candidate_message = EXCLUDED.candidate_message,
			agent_reply = EXCLUDED.agent_reply,
			limit_amount = EXCLUDED.limit_amount`,
		uuid.New(), sessionID, conv, turn.Number, turn.CandidateMessage, turn.AgentReply, limit, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	now := time.Now().UTC()
	for _, o := range offers {
		details, err := json.Marshal(o.Details)
		if err != nil {
			return fmt.Errorf("marshal offer %d: %w", o.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO negotiation_offers (id, session_id, conversation_id, offer_id, turn, offered_by, details, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			ON CONFLICT (conversation_id, offer_id) DO UPDATE
			SET details = EXCLUDED.details, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			uuid.New(), sessionID, conv, int(o.ID), o.Turn, string(o.OfferedBy), details, string(o.Status), now,
		)
		if err != nil {
			return fmt.Errorf("upsert offer %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Turns returns the archived turns of a session, every conversation under
// that id in the order it was recorded.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]TurnRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id::text, turn, candidate_message, agent_reply, limit_amount, recorded_at
		FROM negotiation_turns
		WHERE session_id = $1
		ORDER BY recorded_at, turn`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TurnRow, error) {
		var t TurnRow
		err := row.Scan(&t.ConversationID, &t.Number, &t.CandidateMessage, &t.AgentReply, &t.Limit, &t.RecordedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan turns: %w", err)
	}
	return out, nil
}

// Offers returns the archived offers of a session, oldest first.
func (s *Store) Offers(ctx context.Context, sessionID string) ([]OfferRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id::text, offer_id, turn, offered_by, details, status
		FROM negotiation_offers
		WHERE session_id = $1
		ORDER BY created_at, offer_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []OfferRow
	for rows.Next() {
		var (
			rec     OfferRow
			id      int
			by      string
			status  string
			details []byte
		)
		if err := rows.Scan(&rec.ConversationID, &id, &rec.Turn, &by, &details, &status); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, fmt.Errorf("decode offer %d: %w", id, err)
		}
		rec.ID = graph.OfferID(id)
		rec.OfferedBy = graph.Party(by)
		rec.Status = graph.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
