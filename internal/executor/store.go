package executor

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Record is a stored account as the executor sees it.
type Record struct {
	Key     solana.PublicKey
	Owner   solana.PublicKey
	Program string
	Data    []byte
	Slot    uint64
}

// RecordStore persists matcher accounts. Commit must apply every record or
// none of them.
type RecordStore interface {
	Load(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]Record, error)
	Commit(ctx context.Context, records []Record) error
}

// MatchEvent is one successful priced Match.
type MatchEvent struct {
	Context   solana.PublicKey
	Program   string
	Price     uint64
	TradeSize *uint64
	Slot      uint64
}

// MatchJournal is implemented by stores that keep a match history.
type MatchJournal interface {
	RecordMatch(ctx context.Context, event MatchEvent) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[solana.PublicKey]Record
	matches []MatchEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[solana.PublicKey]Record)}
}

func (m *MemoryStore) Load(_ context.Context, keys []solana.PublicKey) (map[solana.PublicKey]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[solana.PublicKey]Record, len(keys))
	for _, key := range keys {
		record, ok := m.records[key]
		if !ok {
			continue
		}
		record.Data = append([]byte(nil), record.Data...)
		out[key] = record
	}
	return out, nil
}

func (m *MemoryStore) Commit(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		record.Data = append([]byte(nil), record.Data...)
		m.records[record.Key] = record
	}
	return nil
}

func (m *MemoryStore) RecordMatch(_ context.Context, event MatchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, event)
	return nil
}

// Put seeds an account, typically a whitelist entry or an oracle account
// owned by another program.
func (m *MemoryStore) Put(record Record) {
	_ = m.Commit(context.Background(), []Record{record})
}

func (m *MemoryStore) Get(key solana.PublicKey) (Record, bool) {
	records, _ := m.Load(context.Background(), []solana.PublicKey{key})
	record, ok := records[key]
	return record, ok
}

func (m *MemoryStore) Matches() []MatchEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MatchEvent(nil), m.matches...)
}
