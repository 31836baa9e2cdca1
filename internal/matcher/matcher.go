// Package matcher is the closed set of pricing programs behind the shared
// context-record protocol.
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/host"
	"github.com/coldbell/matchers/internal/matcher/compliance"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/macro"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/matcher/volatility"
)

// Program is one matcher variant. Process runs a single invocation and
// either commits all of its writes into the supplied account buffers or
// returns an error; callers discard the buffers on error.
type Program interface {
	Name() string
	Schema() *ctxrecord.Schema
	OpName(op byte) string
	Process(inv *host.Invocation) error
}

var programs = []Program{
	solver.Program{},
	volatility.Program{},
	macro.Program{},
	event.Program{},
	compliance.Program{},
}

// All returns every program sorted by name.
func All() []Program {
	out := append([]Program(nil), programs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func ByName(name string) (Program, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range programs {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

func ByMagic(magic uint64) (Program, bool) {
	for _, p := range programs {
		if p.Schema().Magic == magic {
			return p, true
		}
	}
	return nil, false
}

// Identify returns the program whose magic is stored in record.
func Identify(record []byte) (Program, error) {
	schema, err := ctxrecord.Identify(record)
	if err != nil {
		return nil, err
	}
	p, ok := ByMagic(schema.Magic)
	if !ok {
		return nil, fmt.Errorf("no program for schema %q", schema.Name)
	}
	return p, nil
}

// Deployments maps on-chain program IDs to matcher programs.
type Deployments map[solana.PublicKey]Program

// NewDeployments builds a deployment table from program names to IDs.
// Zero IDs are skipped.
func NewDeployments(ids map[string]solana.PublicKey) (Deployments, error) {
	out := make(Deployments, len(ids))
	for name, id := range ids {
		if id.IsZero() {
			continue
		}
		p, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown matcher %q", name)
		}
		if prev, dup := out[id]; dup {
			return nil, fmt.Errorf("program id %s bound to both %s and %s", id, prev.Name(), p.Name())
		}
		out[id] = p
	}
	return out, nil
}

func (d Deployments) ByProgramID(id solana.PublicKey) (Program, bool) {
	p, ok := d[id]
	return p, ok
}

// IDOf returns the deployed program ID for a matcher name.
func (d Deployments) IDOf(name string) (solana.PublicKey, bool) {
	for id, p := range d {
		if p.Name() == name {
			return id, true
		}
	}
	return solana.PublicKey{}, false
}
