package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/dealroom/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			public_key TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			metadata_cid TEXT,
			reputation_score INTEGER NOT NULL DEFAULT 0,
			transaction_count INTEGER NOT NULL DEFAULT 0,
			registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			buyer_agent_id TEXT NOT NULL,
			seller_agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			final_price REAL,
			hcs_topic_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			data TEXT,
			timestamp INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			signature TEXT NOT NULL,
			hash TEXT,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAgent inserts or replaces an agent identity.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *domain.AgentIdentity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, role, status, public_key, owner, metadata_cid, reputation_score, transaction_count, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			status = excluded.status,
			public_key = excluded.public_key,
			owner = excluded.owner,
			metadata_cid = excluded.metadata_cid,
			reputation_score = excluded.reputation_score,
			transaction_count = excluded.transaction_count,
			registered_at = excluded.registered_at`,
		agent.AgentID, agent.Name, string(agent.Role), string(agent.Status), agent.PublicKey, agent.Owner,
		nullString(agent.MetadataCID), agent.ReputationScore, agent.TransactionCount, agent.RegisteredAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.AgentIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, role, status, public_key, owner, metadata_cid, reputation_score, transaction_count, registered_at
		 FROM agents WHERE agent_id = ?`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents ordered by registration time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.AgentIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, role, status, public_key, owner, metadata_cid, reputation_score, transaction_count, registered_at
		 FROM agents ORDER BY registered_at, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.AgentIdentity
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row scanner) (*domain.AgentIdentity, error) {
	var agent domain.AgentIdentity
	var role, status string
	var metadataCID sql.NullString
	if err := row.Scan(&agent.AgentID, &agent.Name, &role, &status, &agent.PublicKey, &agent.Owner,
		&metadataCID, &agent.ReputationScore, &agent.TransactionCount, &agent.RegisteredAt); err != nil {
		return nil, err
	}
	agent.Role = domain.AgentRole(role)
	agent.Status = domain.AgentStatus(status)
	agent.MetadataCID = metadataCID.String
	return &agent, nil
}

// SaveSession inserts or updates the session row. Messages are written with
// AppendMessage.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.NegotiationSession) error {
	var finalPrice sql.NullFloat64
	if session.FinalPrice != nil {
		finalPrice = sql.NullFloat64{Float64: *session.FinalPrice, Valid: true}
	}
	var completedAt sql.NullTime
	if session.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *session.CompletedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, buyer_agent_id, seller_agent_id, status, started_at, completed_at, final_price, hcs_topic_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			final_price = excluded.final_price,
			hcs_topic_id = excluded.hcs_topic_id`,
		session.SessionID, session.BuyerAgentID, session.SellerAgentID, string(session.Status),
		session.StartedAt, completedAt, finalPrice, nullString(session.HCSTopicID))
	return err
}

// AppendMessage stores the message at position seq of the session log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, seq int, msg *domain.SignedMessage) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal message data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, seq, type, data, timestamp, agent_id, signature, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(msg.Type), string(data), msg.Timestamp, msg.AgentID, msg.Signature, nullString(msg.Hash))
	return err
}

// GetSession retrieves a session and its messages.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.NegotiationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, buyer_agent_id, seller_agent_id, status, started_at, completed_at, final_price, hcs_topic_id
		 FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	messages, err := s.getMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// ListSessions lists all sessions with their messages, oldest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.NegotiationSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, buyer_agent_id, seller_agent_id, status, started_at, completed_at, final_price, hcs_topic_id
		 FROM sessions ORDER BY started_at, session_id`)
	if err != nil {
		return nil, err
	}

	var sessions []domain.NegotiationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range sessions {
		messages, err := s.getMessages(ctx, sessions[i].SessionID)
		if err != nil {
			return nil, err
		}
		sessions[i].Messages = messages
	}
	return sessions, nil
}

func scanSession(row scanner) (*domain.NegotiationSession, error) {
	var session domain.NegotiationSession
	var status string
	var completedAt sql.NullTime
	var finalPrice sql.NullFloat64
	var topicID sql.NullString
	if err := row.Scan(&session.SessionID, &session.BuyerAgentID, &session.SellerAgentID, &status,
		&session.StartedAt, &completedAt, &finalPrice, &topicID); err != nil {
		return nil, err
	}
	session.Status = domain.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	if finalPrice.Valid {
		p := finalPrice.Float64
		session.FinalPrice = &p
	}
	session.HCSTopicID = topicID.String
	session.Messages = []*domain.SignedMessage{}
	return &session, nil
}

func (s *SQLiteStore) getMessages(ctx context.Context, sessionID string) ([]*domain.SignedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, data, timestamp, agent_id, signature, hash
		 FROM session_messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.SignedMessage{}
	for rows.Next() {
		var msgType string
		var data, hash sql.NullString
		msg := &domain.SignedMessage{}
		if err := rows.Scan(&msgType, &data, &msg.Timestamp, &msg.AgentID, &msg.Signature, &hash); err != nil {
			return nil, err
		}
		msg.Type = domain.MessageType(msgType)
		msg.Hash = hash.String
		payload, err := domain.DecodePayload(msg.Type, json.RawMessage(data.String))
		if err != nil {
			return nil, err
		}
		msg.Data = payload
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
