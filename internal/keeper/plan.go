package keeper

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/matcher/compliance"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/macro"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/matcher/volatility"
)

var errSkipTarget = errors.New("skip target")

// syncRequest is everything needed to decide whether a context record
// needs a sync and to build it.
type syncRequest struct {
	ProgramID    solana.PublicKey
	Program      string
	Context      solana.PublicKey
	Keeper       solana.PublicKey
	Record       []byte
	Observation  Observation
	Slot         uint64
	RefreshSlots uint64
}

// planSync returns the instructions that bring the record in line with the
// observation. It returns errSkipTarget when the record is already current.
func planSync(req syncRequest) ([]solana.Instruction, error) {
	switch req.Program {
	case "solver":
		return planSolver(req)
	case "compliance":
		return planCompliance(req)
	case "volatility":
		return planVolatility(req)
	case "macro":
		return planMacro(req)
	case "event":
		return planEvent(req)
	default:
		return nil, fmt.Errorf("no sync plan for matcher %q", req.Program)
	}
}

func (r syncRequest) due(lastUpdateSlot uint64) bool {
	return ctxrecord.SlotsSince(r.Slot, lastUpdateSlot) >= r.RefreshSlots
}

func planSolver(req syncRequest) ([]solana.Instruction, error) {
	st, err := solver.Load(req.Record)
	if err != nil {
		return nil, err
	}
	if !st.Solver.Equals(req.Keeper) {
		return nil, fmt.Errorf("%w: keeper %s is not the designated solver %s", errSkipTarget, req.Keeper, st.Solver)
	}
	price := req.Observation.PriceE6
	if price == 0 {
		return nil, fmt.Errorf("%w: no price observed", errSkipTarget)
	}
	if price == st.OraclePrice {
		return nil, fmt.Errorf("%w: oracle price unchanged", errSkipTarget)
	}
	ix, err := solver.NewOracleUpdateInstruction(req.ProgramID, req.Keeper, req.Context, price)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

func planCompliance(req syncRequest) ([]solana.Instruction, error) {
	st, err := compliance.Load(req.Record)
	if err != nil {
		return nil, err
	}
	price := req.Observation.PriceE6
	if price == 0 {
		return nil, fmt.Errorf("%w: no price observed", errSkipTarget)
	}
	if price == st.OraclePrice {
		return nil, fmt.Errorf("%w: oracle price unchanged", errSkipTarget)
	}
	ix, err := compliance.NewOracleUpdateInstruction(req.ProgramID, req.Keeper, req.Context, price)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

func planVolatility(req syncRequest) ([]solana.Instruction, error) {
	st, err := volatility.Load(req.Record)
	if err != nil {
		return nil, err
	}
	obs := req.Observation
	if obs.VolMarkE6 == 0 {
		return nil, fmt.Errorf("%w: no volatility mark observed", errSkipTarget)
	}
	regime := volatility.Regime(obs.VolRegime)
	if !regime.Valid() {
		return nil, fmt.Errorf("observed volatility regime %d: %w", obs.VolRegime, volatility.ErrInvalidRegime)
	}
	changed := obs.VolMarkE6 != st.VolMark ||
		obs.CurrentVolBps != st.CurrentVolBps ||
		regime != st.Regime ||
		obs.Vol7dAvgBps != st.Vol7dAvgBps ||
		obs.Vol30dAvgBps != st.Vol30dAvgBps
	if !changed && !req.due(st.LastUpdateSlot) {
		return nil, fmt.Errorf("%w: volatility state current", errSkipTarget)
	}
	ix, err := volatility.NewOracleSyncInstruction(req.ProgramID, req.Context, st.VarianceTracker, st.VolIndex, volatility.SyncParams{
		CurrentVolBps: obs.CurrentVolBps,
		VolMark:       obs.VolMarkE6,
		Regime:        obs.VolRegime,
		Vol7dAvgBps:   obs.Vol7dAvgBps,
		Vol30dAvgBps:  obs.Vol30dAvgBps,
	})
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}

func planMacro(req syncRequest) ([]solana.Instruction, error) {
	st, err := macro.Load(req.Record)
	if err != nil {
		return nil, err
	}
	obs := req.Observation
	if obs.NominalRateBps == 0 && obs.InflationBps == 0 {
		return nil, fmt.Errorf("%w: no rates observed", errSkipTarget)
	}
	params, err := macro.IndexSyncFromRate(obs.NominalRateBps, obs.InflationBps, obs.SignalSeverity, obs.SignalSpreadBps)
	if err != nil {
		return nil, err
	}

	var out []solana.Instruction
	changed := params.Index != st.CurrentIndex ||
		params.Components != st.Components.Pack() ||
		params.SignalSeverity != st.SignalSeverity ||
		params.SignalSpreadBps != st.SignalAdjustment
	if changed || req.due(st.LastUpdateSlot) {
		ix, err := macro.NewIndexSyncInstruction(req.ProgramID, req.Context, st.MacroOracle, params)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}

	// Regime changes need the bound oracle's signature.
	if obs.MacroRegime != nil && macro.Regime(*obs.MacroRegime) != st.Regime && st.MacroOracle.Equals(req.Keeper) {
		regime := macro.Regime(*obs.MacroRegime)
		if !regime.Valid() {
			return nil, fmt.Errorf("observed macro regime %d: %w", *obs.MacroRegime, macro.ErrInvalidRegime)
		}
		ix, err := macro.NewRegimeUpdateInstruction(req.ProgramID, req.Context, req.Keeper, regime)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: macro state current", errSkipTarget)
	}
	return out, nil
}

func planEvent(req syncRequest) ([]solana.Instruction, error) {
	st, err := event.Load(req.Record)
	if err != nil {
		return nil, err
	}
	if st.Resolved {
		return nil, fmt.Errorf("%w: market resolved", errSkipTarget)
	}
	obs := req.Observation
	if obs.ProbabilityE6 > event.MaxProbability {
		return nil, fmt.Errorf("observed probability %d: %w", obs.ProbabilityE6, event.ErrInvalidProbability)
	}
	if obs.ProbabilityE6 == 0 {
		return nil, fmt.Errorf("%w: no probability observed", errSkipTarget)
	}
	changed := obs.ProbabilityE6 != st.Probability ||
		obs.SignalSeverity != st.SignalSeverity ||
		obs.SignalSpreadBps != st.SignalAdjustment
	if !changed && !req.due(st.LastUpdateSlot) {
		return nil, fmt.Errorf("%w: probability current", errSkipTarget)
	}
	ix, err := event.NewProbabilitySyncInstruction(req.ProgramID, req.Context, st.EventOracle, event.ProbabilitySyncParams{
		Probability:     obs.ProbabilityE6,
		SignalSeverity:  obs.SignalSeverity,
		SignalSpreadBps: obs.SignalSpreadBps,
	})
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{ix}, nil
}
