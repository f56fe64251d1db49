package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	txcontext "taskguard/pkg/platform/tx"
)

// chainLockKey is the advisory lock serializing appends to the chain head.
const chainLockKey = 0x7461736b_61756469 // "taskaudi"

// Store implements audit.Store on the audit_records table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `
	id, actor_id, actor_detached, action, entity_type, entity_id,
	source_address, user_agent, request_id, metadata, created_at,
	prev_hash, hash`

// Append seals rec against the current head and inserts it. The advisory
// lock is transaction scoped, so concurrent appends queue on the head.
func (s *Store) Append(ctx context.Context, rec *audit.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	return txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)

		if _, err := exec.ExecContext(txCtx, `SELECT pg_advisory_xact_lock($1)`, int64(chainLockKey)); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		var head string
		err := exec.QueryRowContext(txCtx, `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&head)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read audit chain head: %w", err)
		}
		audit.Seal(rec, head)

		query := `
			INSERT INTO audit_records (` + recordColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err = exec.ExecContext(txCtx, query,
			rec.ID,
			nullableUUID(rec.ActorID),
			rec.ActorDetached,
			string(rec.Action),
			rec.EntityType,
			nullableString(rec.EntityID),
			nullableString(rec.SourceAddress),
			nullableString(rec.UserAgent),
			nullableString(rec.RequestID),
			string(metadata),
			rec.Timestamp,
			rec.PrevHash,
			rec.Hash,
		)
		if err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
		return nil
	})
}

// Query returns matching records newest first.
func (s *Store) Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(filter.ActorID))
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}

	query := `SELECT ` + recordColumns + ` FROM audit_records`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, audit.NormalizeLimit(limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Chain returns every record in append order.
func (s *Store) Chain(ctx context.Context) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM audit_records ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DetachActor nulls the actor reference ahead of a principal purge.
func (s *Store) DetachActor(ctx context.Context, userID id.UserID) (int, error) {
	if userID.IsNil() {
		return 0, nil
	}
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE audit_records SET actor_id = NULL, actor_detached = TRUE WHERE actor_id = $1`,
		uuid.UUID(userID),
	)
	if err != nil {
		return 0, fmt.Errorf("detach audit actor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach audit actor: %w", err)
	}
	return int(n), nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			rec                                        audit.Record
			actorID                                    *uuid.UUID
			action                                     string
			entityID, sourceAddr, userAgent, requestID sql.NullString
			metadata                                   []byte
		)
		err := rows.Scan(
			&rec.ID,
			&actorID,
			&rec.ActorDetached,
			&action,
			&rec.EntityType,
			&entityID,
			&sourceAddr,
			&userAgent,
			&requestID,
			&metadata,
			&rec.Timestamp,
			&rec.PrevHash,
			&rec.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		rec.Action = audit.Action(action)
		if actorID != nil {
			rec.ActorID = id.UserID(*actorID)
		}
		rec.EntityID = entityID.String
		rec.SourceAddress = sourceAddr.String
		rec.UserAgent = userAgent.String
		rec.RequestID = requestID.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func nullableUUID(userID id.UserID) *uuid.UUID {
	if userID.IsNil() {
		return nil
	}
	u := uuid.UUID(userID)
	return &u
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
