package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
)

// SQLiteStore is the file-backed archive.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS negotiation_turns (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL,
		conversation_id   TEXT NOT NULL,
		turn              INTEGER NOT NULL,
		candidate_message TEXT NOT NULL,
		agent_reply       TEXT NOT NULL,
		limit_amount      INTEGER NOT NULL,
		recorded_at       INTEGER NOT NULL,
		UNIQUE (conversation_id, turn)
	);
	CREATE INDEX IF NOT EXISTS idx_negotiation_turns_session ON negotiation_turns(session_id, recorded_at);
	CREATE TABLE IF NOT EXISTS negotiation_offers (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		offer_id        INTEGER NOT NULL,
		turn            INTEGER NOT NULL,
		offered_by      TEXT NOT NULL,
		details         TEXT NOT NULL,
		status          TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		UNIQUE (conversation_id, offer_id)
	);
	CREATE INDEX IF NOT EXISTS idx_negotiation_offers_session ON negotiation_offers(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordTurn(ctx context.Context, sessionID, conversationID string, turn graph.Turn, limit int, offers []graph.OfferRecord) error {
	if conversationID == "" {
		return fmt.Errorf("record turn %d: empty conversation id", turn.Number)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO negotiation_turns (id, session_id, conversation_id, turn, candidate_message, agent_reply, limit_amount, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, turn) DO UPDATE
		SET candidate_message = excluded.candidate_message,
			agent_reply = excluded.agent_reply,
			limit_amount = excluded.limit_amount`,
		uuid.NewString(), sessionID, conversationID, turn.Number, turn.CandidateMessage, turn.AgentReply, limit, turn.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, o := range offers {
		details, err := json.Marshal(o.Details)
		if err != nil {
			return fmt.Errorf("marshal offer %d: %w", o.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO negotiation_offers (id, session_id, conversation_id, offer_id, turn, offered_by, details, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (conversation_id, offer_id) DO UPDATE
			SET details = excluded.details, status = excluded.status, updated_at = excluded.updated_at`,
			uuid.NewString(), sessionID, conversationID, int(o.ID), o.Turn, string(o.OfferedBy), string(details), string(o.Status), now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert offer %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]TurnRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, turn, candidate_message, agent_reply, limit_amount, recorded_at
		FROM negotiation_turns
		WHERE session_id = ?
		ORDER BY recorded_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRow
	for rows.Next() {
		var t TurnRow
		var recorded int64
		if err := rows.Scan(&t.ConversationID, &t.Number, &t.CandidateMessage, &t.AgentReply, &t.Limit, &recorded); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.RecordedAt = time.UnixMilli(recorded).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Offers(ctx context.Context, sessionID string) ([]OfferRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, offer_id, turn, offered_by, details, status
		FROM negotiation_offers
		WHERE session_id = ?
		ORDER BY created_at, rowid`, sessionID)
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
			details string
		)
		if err := rows.Scan(&rec.ConversationID, &id, &rec.Turn, &by, &details, &status); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, fmt.Errorf("decode offer %d: %w", id, err)
		}
		rec.ID = graph.OfferID(id)
		rec.OfferedBy = graph.Party(by)
		rec.Status = graph.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
