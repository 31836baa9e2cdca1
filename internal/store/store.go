// Package store persists matcher context records, the match journal and
// the indexer's sync progress in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/executor"
)

type Store struct {
	db *DB
}

var (
	_ executor.RecordStore  = (*Store)(nil)
	_ executor.MatchJournal = (*Store)(nil)
)

// StoredRecord is a persisted context record with its decoded fields.
type StoredRecord struct {
	executor.Record
	Magic     uint64
	Fields    []ctxrecord.Value
	UpdatedAt int64
}

type StoredMatch struct {
	ID int64
	executor.MatchEvent
	CreatedAt int64
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: newDB(db)}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			program TEXT PRIMARY KEY,
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matcher_records (
			pubkey TEXT PRIMARY KEY,
			program TEXT NOT NULL,
			owner TEXT NOT NULL,
			magic TEXT NOT NULL,
			data BYTEA NOT NULL,
			fields_json TEXT NOT NULL,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matcher_records_program ON matcher_records(program, updated_at DESC);`,
		`CREATE TABLE IF NOT EXISTS match_events (
			id BIGSERIAL PRIMARY KEY,
			context TEXT NOT NULL,
			program TEXT NOT NULL,
			price TEXT NOT NULL,
			trade_size TEXT,
			slot BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_context_time ON match_events(context, id DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Load returns the stored records for keys. Unknown keys are absent.
func (s *Store) Load(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]executor.Record, error) {
	out := make(map[solana.PublicKey]executor.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(keys))
	for _, key := range keys {
		args = append(args, key.String())
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, program, owner, data, slot
		FROM matcher_records
		WHERE pubkey IN (`+placeholders(len(keys))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[record.Key] = record
	}
	return out, rows.Err()
}

// Commit writes every record in one transaction.
func (s *Store) Commit(ctx context.Context, records []executor.Record) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, record := range records {
			if err := s.UpsertRecordTx(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpsertRecordTx(ctx context.Context, tx *Tx, record executor.Record) error {
	magic, fields, err := recordFields(record.Data)
	if err != nil {
		return fmt.Errorf("decode record %s: %w", record.Key, err)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matcher_records (
			pubkey, program, owner, magic, data, fields_json, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET
			program = excluded.program,
			owner = excluded.owner,
			magic = excluded.magic,
			data = excluded.data,
			fields_json = excluded.fields_json,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		record.Key.String(),
		record.Program,
		record.Owner.String(),
		formatMagic(magic),
		record.Data,
		string(raw),
		int64(record.Slot),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", record.Key, err)
	}
	return nil
}

// recordFields returns the magic and decoded fields of a matcher record. Data
// that no schema claims yields a zero magic and no fields.
func recordFields(data []byte) (uint64, []ctxrecord.Value, error) {
	schema, err := ctxrecord.Identify(data)
	if err != nil {
		return 0, nil, nil
	}
	fields, err := schema.Decode(data)
	if err != nil {
		return 0, nil, err
	}
	return schema.Magic, fields, nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, program string, slot uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (program, last_slot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(program) DO UPDATE SET
			last_slot = excluded.last_slot,
			updated_at = excluded.updated_at
	`, program, int64(slot), time.Now().Unix())
	return err
}

func (s *Store) LastSlot(ctx context.Context, program string) (uint64, bool, error) {
	var slot int64
	err := s.db.QueryRowContext(ctx, `SELECT last_slot FROM sync_state WHERE program = ?`, program).Scan(&slot)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(slot), true, nil
}

func (s *Store) GetRecord(ctx context.Context, pubkey solana.PublicKey) (StoredRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pubkey, program, owner, data, slot, magic, fields_json, updated_at
		FROM matcher_records
		WHERE pubkey = ?
	`, pubkey.String())
	record, err := scanStoredRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, false, nil
	}
	if err != nil {
		return StoredRecord{}, false, err
	}
	return record, true, nil
}

// ListRecords returns the most recently updated records, optionally for
// one program.
func (s *Store) ListRecords(ctx context.Context, program string, limit int) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, program, owner, data, slot, magic, fields_json, updated_at
		FROM matcher_records
		WHERE (? = '' OR program = ?)
		ORDER BY updated_at DESC, pubkey
		LIMIT ?
	`, program, program, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]StoredRecord, 0)
	for rows.Next() {
		record, err := scanStoredRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *Store) RecordMatch(ctx context.Context, event executor.MatchEvent) error {
	var tradeSize sql.NullString
	if event.TradeSize != nil {
		tradeSize = sql.NullString{String: strconv.FormatUint(*event.TradeSize, 10), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_events (context, program, price, trade_size, slot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.Context.String(),
		event.Program,
		strconv.FormatUint(event.Price, 10),
		tradeSize,
		int64(event.Slot),
		time.Now().Unix(),
	)
	return err
}

// ListMatches returns the newest matches first. A zero context lists all.
func (s *Store) ListMatches(ctx context.Context, contextKey solana.PublicKey, limit int) ([]StoredMatch, error) {
	filter := ""
	if !contextKey.IsZero() {
		filter = contextKey.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context, program, price, trade_size, slot, created_at
		FROM match_events
		WHERE (? = '' OR context = ?)
		ORDER BY id DESC
		LIMIT ?
	`, filter, filter, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := make([]StoredMatch, 0)
	for rows.Next() {
		var (
			match      StoredMatch
			contextB58 string
			price      string
			tradeSize  sql.NullString
			slot       int64
		)
		if err := rows.Scan(&match.ID, &contextB58, &match.Program, &price, &tradeSize, &slot, &match.CreatedAt); err != nil {
			return nil, err
		}
		if match.Context, err = solana.PublicKeyFromBase58(contextB58); err != nil {
			return nil, fmt.Errorf("match %d: %w", match.ID, err)
		}
		if match.Price, err = strconv.ParseUint(price, 10, 64); err != nil {
			return nil, fmt.Errorf("match %d price: %w", match.ID, err)
		}
		if tradeSize.Valid {
			size, err := strconv.ParseUint(tradeSize.String, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("match %d trade size: %w", match.ID, err)
			}
			match.TradeSize = &size
		}
		match.Slot = uint64(slot)
		out = append(out, match)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (executor.Record, error) {
	var (
		record executor.Record
		pubkey string
		owner  string
		slot   int64
	)
	if err := row.Scan(&pubkey, &record.Program, &owner, &record.Data, &slot); err != nil {
		return executor.Record{}, err
	}
	return finishRecord(record, pubkey, owner, slot)
}

func scanStoredRecord(row scanner) (StoredRecord, error) {
	var (
		out    StoredRecord
		pubkey string
		owner  string
		slot   int64
		magic  string
		fields string
	)
	if err := row.Scan(&pubkey, &out.Program, &owner, &out.Data, &slot, &magic, &fields, &out.UpdatedAt); err != nil {
		return StoredRecord{}, err
	}
	record, err := finishRecord(out.Record, pubkey, owner, slot)
	if err != nil {
		return StoredRecord{}, err
	}
	out.Record = record
	if out.Magic, err = parseMagic(magic); err != nil {
		return StoredRecord{}, fmt.Errorf("record %s magic: %w", pubkey, err)
	}
	if err := json.Unmarshal([]byte(fields), &out.Fields); err != nil {
		return StoredRecord{}, fmt.Errorf("record %s fields: %w", pubkey, err)
	}
	return out, nil
}

func finishRecord(record executor.Record, pubkey, owner string, slot int64) (executor.Record, error) {
	var err error
	if record.Key, err = solana.PublicKeyFromBase58(pubkey); err != nil {
		return executor.Record{}, fmt.Errorf("record pubkey %q: %w", pubkey, err)
	}
	if record.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
		return executor.Record{}, fmt.Errorf("record %s owner: %w", pubkey, err)
	}
	record.Slot = uint64(slot)
	return record, nil
}

func formatMagic(magic uint64) string {
	return fmt.Sprintf("%016x", magic)
}

func parseMagic(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 16, 64)
}

// ClampLimit is the page size the list queries actually use.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
