package apiserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/executor"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/store"
)

func (s *Service) handleContexts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	program := strings.TrimSpace(r.URL.Query().Get("program"))
	if program != "" {
		if _, ok := matcher.ByName(program); !ok {
			s.respondError(w, http.StatusBadRequest, "unknown program "+program)
			return
		}
	}
	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.store.ListRecords(r.Context(), program, limit)
	if err != nil {
		s.logger.Error("list contexts failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list contexts")
		return
	}

	items := make([]contextView, 0, len(records))
	for _, record := range records {
		view, err := newContextView(record.Record, record.UpdatedAt)
		if err != nil {
			s.logger.Warn("skip undecodable context", "err", err)
			continue
		}
		items = append(items, view)
	}
	s.respondJSON(w, http.StatusOK, listResponse[contextView]{Items: items, Limit: store.ClampLimit(limit)})
}

func (s *Service) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/contexts/"), "/")
	pubkey, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid context pubkey")
		return
	}

	record, ok, err := s.store.GetRecord(r.Context(), pubkey)
	if err != nil {
		s.logger.Error("get context failed", "context", pubkey, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get context")
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "context not found")
		return
	}

	view, err := newContextView(record.Record, record.UpdatedAt)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

type quoteRequest struct {
	Context string `json:"context"`
	// LP defaults to the LP key bound in the record.
	LP         string   `json:"lp,omitempty"`
	TradeSize  *uint64  `json:"trade_size,omitempty"`
	Whitelists []string `json:"whitelists,omitempty"`
}

type quoteResponse struct {
	Context string `json:"context"`
	Program string `json:"program"`
	Slot    uint64 `json:"slot"`
	PriceE6 uint64 `json:"price_e6"`
	Price   string `json:"price"`
}

// handleQuote runs a Match against the stored record without committing it
// and returns the execution price the matcher would report.
func (s *Service) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var req quoteRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	contextKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Context))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid context pubkey")
		return
	}

	record, ok, err := s.store.GetRecord(r.Context(), contextKey)
	if err != nil {
		s.logger.Error("get context failed", "context", contextKey, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get context")
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "context not found")
		return
	}

	lp, err := ctxrecord.BoundLPKey(record.Data)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.LP != "" {
		if lp, err = solana.PublicKeyFromBase58(strings.TrimSpace(req.LP)); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid lp pubkey")
			return
		}
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(lp, false, true),
		solana.NewAccountMeta(contextKey, true, false),
	}
	for _, raw := range req.Whitelists {
		entry, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid whitelist pubkey")
			return
		}
		metas = append(metas, solana.NewAccountMeta(entry, false, false))
	}

	result, err := s.executor.Invoke(r.Context(), executor.Request{
		Program:     record.Program,
		Instruction: solana.NewInstruction(record.Owner, metas, ctxrecord.MatchPayload(req.TradeSize)),
		Simulate:    true,
	})
	if err != nil {
		s.respondInvokeError(w, err)
		return
	}
	if !result.Priced {
		s.respondError(w, http.StatusUnprocessableEntity, "matcher returned no price")
		return
	}

	s.respondJSON(w, http.StatusOK, quoteResponse{
		Context: contextKey.String(),
		Program: result.Program,
		Slot:    result.Clock.Slot,
		PriceE6: result.ExecPrice,
		Price:   ctxrecord.FormatE6(result.ExecPrice),
	})
}

func (s *Service) respondInvokeError(w http.ResponseWriter, err error) {
	if coded, ok := ctxrecord.Coded(err); ok {
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     coded.Error(),
			Codespace: coded.Codespace(),
			Code:      coded.ABCICode(),
			Kind:      ctxrecord.KindOf(err).String(),
		})
		return
	}
	if errors.Is(err, executor.ErrUnknownProgram) {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.logger.Error("quote failed", "err", err)
	s.respondError(w, http.StatusInternalServerError, "failed to quote")
}

func (s *Service) handleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	contextKey, err := parseOptionalPubkey(r, "context")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := s.store.ListMatches(r.Context(), contextKey, limit)
	if err != nil {
		s.logger.Error("list matches failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	items := make([]matchView, 0, len(matches))
	for _, match := range matches {
		items = append(items, newMatchView(match))
	}
	s.respondJSON(w, http.StatusOK, listResponse[matchView]{Items: items, Limit: store.ClampLimit(limit)})
}
