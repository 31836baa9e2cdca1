package apiserver

import (
	"fmt"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/executor"
	"github.com/coldbell/matchers/internal/store"
)

type contextView struct {
	Pubkey    string      `json:"pubkey"`
	Program   string      `json:"program"`
	Owner     string      `json:"owner"`
	Magic     string      `json:"magic"`
	Version   uint32      `json:"version"`
	Slot      uint64      `json:"slot"`
	UpdatedAt int64       `json:"updated_at,omitempty"`
	Fields    []fieldView `json:"fields"`
}

// fieldView is one decoded record field. Display renders e6 fixed-point
// values as decimals and bps values as percentages.
type fieldView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Offset  int    `json:"offset"`
	Value   any    `json:"value"`
	Display string `json:"display,omitempty"`
}

type matchView struct {
	ID        int64   `json:"id"`
	Context   string  `json:"context"`
	Program   string  `json:"program"`
	PriceE6   uint64  `json:"price_e6"`
	Price     string  `json:"price"`
	TradeSize *uint64 `json:"trade_size,omitempty"`
	Slot      uint64  `json:"slot"`
	CreatedAt int64   `json:"created_at"`
}

// newContextView decodes the record bytes rather than the stored field
// snapshot so 64-bit values keep full precision.
func newContextView(record executor.Record, updatedAt int64) (contextView, error) {
	schema, err := ctxrecord.Identify(record.Data)
	if err != nil {
		return contextView{}, fmt.Errorf("record %s: %w", record.Key, err)
	}
	values, err := schema.Decode(record.Data)
	if err != nil {
		return contextView{}, fmt.Errorf("record %s: %w", record.Key, err)
	}

	fields := make([]fieldView, 0, len(values))
	for _, value := range values {
		fields = append(fields, fieldView{
			Name:    value.Name,
			Kind:    value.Kind,
			Offset:  value.Offset,
			Value:   value.Value,
			Display: value.Display(),
		})
	}

	return contextView{
		Pubkey:    record.Key.String(),
		Program:   record.Program,
		Owner:     record.Owner.String(),
		Magic:     fmt.Sprintf("%016x", schema.Magic),
		Version:   ctxrecord.VersionField.Get(record.Data),
		Slot:      record.Slot,
		UpdatedAt: updatedAt,
		Fields:    fields,
	}, nil
}

func newMatchView(match store.StoredMatch) matchView {
	return matchView{
		ID:        match.ID,
		Context:   match.Context.String(),
		Program:   match.Program,
		PriceE6:   match.Price,
		Price:     ctxrecord.FormatE6(match.Price),
		TradeSize: match.TradeSize,
		Slot:      match.Slot,
		CreatedAt: match.CreatedAt,
	}
}
