// Package holdings converts reconstructed constituent-token balances into
// one normalized balance per real holder, denominated in the vault
// structure's base share token.
package holdings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/reconstruct"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

// ErrUnknownKind marks a topology whose discriminator is not one of the
// supported variants.
var ErrUnknownKind = errors.New("unknown vault kind")

// Reconstructor is the balance-reconstruction dependency.
type Reconstructor interface {
	Reconstruct(ctx context.Context, chain string, targetBlock uint64, tokenAddresses, excludeAccounts []string) (*reconstruct.Result, error)
}

// SourceBalance records the raw balance one constituent token contributed to
// a holder record.
type SourceBalance struct {
	Token   string
	Balance *big.Int
}

// HolderRecord is one real holder with its normalized balance in the
// structure's base denomination and per-constituent provenance. Records are
// built fresh per request and never persisted.
type HolderRecord struct {
	Holder  string
	Balance *big.Int
	Sources []SourceBalance
}

// Result carries the merged holder records plus the token metadata the
// boundary needs to format amounts.
type Result struct {
	Holders []HolderRecord
	Tokens  []indexed.Token
	// Base is the base-denomination token all balances are expressed in.
	Base indexed.Token
}

type Service struct {
	rec    Reconstructor
	logger *zap.Logger
}

func NewService(rec Reconstructor, logger *zap.Logger) *Service {
	return &Service{rec: rec, logger: logger}
}

// NormalizeHolders resolves every real holder of the vault's constituent
// tokens at targetBlock and re-expresses their balances in the base
// denomination.
//
// floor is the inclusive lower bound on reported balances; nil means
// strictly greater than zero.
func (s *Service) NormalizeHolders(ctx context.Context, topo Topology, targetBlock uint64, floor *big.Int) (*Result, error) {
	topo = topo.Normalized()
	ops := toSet(topo.OperationalAccounts())

	// Exclude only the zero address here: strategy-held balances are still
	// needed as aggregate claims in the managed branch.
	res, err := s.rec.Reconstruct(ctx, topo.Chain, targetBlock, topo.ConstituentTokens(), nil)
	if err != nil {
		return nil, fmt.Errorf("reconstruct balances for vault %s: %w", topo.ID, err)
	}

	var records map[string]*HolderRecord
	switch topo.Kind {
	case KindStandard:
		records = collect(res.Balances, topo.outerTokens(), ops)

	case KindManaged:
		records = s.normalizeManaged(res, topo, targetBlock, ops)

	default:
		return nil, fmt.Errorf("%w %q (vault %s)", ErrUnknownKind, topo.Kind, topo.ID)
	}

	holders := make([]HolderRecord, 0, len(records))
	for _, rec := range records {
		if floor == nil {
			if rec.Balance.Sign() <= 0 {
				continue
			}
		} else if rec.Balance.Cmp(floor) < 0 {
			continue
		}
		holders = append(holders, *rec)
	}
	sort.Slice(holders, func(i, j int) bool {
		if c := holders[i].Balance.Cmp(holders[j].Balance); c != 0 {
			return c > 0
		}
		return holders[i].Holder < holders[j].Holder
	})

	base, err := tokenByAddress(res.Tokens, topo.BaseToken())
	if err != nil {
		return nil, fmt.Errorf("vault %s: %w", topo.ID, err)
	}
	return &Result{Holders: holders, Tokens: res.Tokens, Base: base}, nil
}

// normalizeManaged merges the manager's direct holders with the outer
// vault's holders converted pro rata into the manager's denomination.
func (s *Service) normalizeManaged(res *reconstruct.Result, topo Topology, targetBlock uint64, ops map[string]bool) map[string]*HolderRecord {
	// Manager-share holders already hold the base denomination.
	records := collect(res.Balances, topo.managerTokens(), ops)

	// The outer vault's aggregate claim on the manager is the manager-share
	// balance held by the outer strategy. Absent row means zero: "no deposit
	// yet" and "data missing" are indistinguishable here, which loses
	// precision for freshly deployed vaults, so make the zero case visible.
	claim := res.Balance(topo.Manager.ShareToken, topo.Strategy)

	// Total supply of the outer share token, pre-exclusion.
	supply := new(big.Int)
	for _, amount := range res.Balances[topo.ShareToken] {
		supply.Add(supply, amount)
	}

	outer := collect(res.Balances, topo.outerTokens(), ops)
	if claim.Sign() == 0 && len(outer) > 0 {
		s.logger.Warn("outer vault has holders but zero manager-share claim",
			zap.String("vault", topo.ID),
			zap.String("strategy", topo.Strategy),
			zap.Uint64("block", targetBlock))
	}

	for holder, rec := range outer {
		// Integer floor division: a fractional share below one base unit is
		// economically negligible and must never be rounded up.
		if supply.Sign() > 0 {
			rec.Balance = new(big.Int).Div(new(big.Int).Mul(rec.Balance, claim), supply)
		} else {
			rec.Balance = new(big.Int)
		}

		merged, ok := records[holder]
		if !ok {
			records[holder] = rec
			continue
		}
		merged.Balance.Add(merged.Balance, rec.Balance)
		merged.Sources = append(merged.Sources, rec.Sources...)
	}
	return records
}

// collect sums per-holder contributions across the given tokens, skipping
// excluded accounts and zero balances, tagging provenance per constituent.
func collect(balances map[string]map[string]*big.Int, tokens []string, excluded map[string]bool) map[string]*HolderRecord {
	records := map[string]*HolderRecord{}
	for _, token := range tokens {
		token = utils.NormalizeAddress(token)
		for account, amount := range balances[token] {
			if amount.Sign() == 0 || excluded[account] {
				continue
			}
			rec, ok := records[account]
			if !ok {
				rec = &HolderRecord{Holder: account, Balance: new(big.Int)}
				records[account] = rec
			}
			rec.Balance.Add(rec.Balance, amount)
			rec.Sources = append(rec.Sources, SourceBalance{Token: token, Balance: new(big.Int).Set(amount)})
		}
	}
	return records
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		out[s] = true
	}
	return out
}

func tokenByAddress(tokens []indexed.Token, address string) (indexed.Token, error) {
	for _, t := range tokens {
		if utils.NormalizeAddress(t.Address) == address {
			return t, nil
		}
	}
	return indexed.Token{}, fmt.Errorf("%w: token %s", indexed.ErrMissingMetadata, address)
}
