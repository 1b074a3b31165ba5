// Package reconstruct derives the exact balance of every (token, account)
// pair at an arbitrary past block, by seeding from the most recent periodic
// snapshot and replaying the balance-change deltas up to the target block.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/alitto/pond/v2"
	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrEmptyTokenSet marks a request without any token address.
	ErrEmptyTokenSet = errors.New("empty token address set")
	// ErrNoSnapshot means no periodic snapshot exists at or before the
	// target block: the data for that period is not available. Not retried.
	ErrNoSnapshot = errors.New("no snapshot at or before target block")
	// ErrIndexerBehind means the external indexer has not processed the
	// target block yet. Distinct from ErrNoSnapshot.
	ErrIndexerBehind = errors.New("indexer has not caught up to target block")
)

// Result is the exact balance table at the target block plus the resolved
// metadata of the requested tokens. The table is built per request and never
// shared or retained.
type Result struct {
	// Balances maps token -> account -> raw integer balance.
	Balances map[string]map[string]*big.Int
	Tokens   []indexed.Token
}

// Balance returns the raw balance of (token, account), zero when absent.
// Addresses are normalized before lookup.
func (r *Result) Balance(token, account string) *big.Int {
	accounts, ok := r.Balances[utils.NormalizeAddress(token)]
	if !ok {
		return new(big.Int)
	}
	amount, ok := accounts[utils.NormalizeAddress(account)]
	if !ok {
		return new(big.Int)
	}
	return amount
}

type Reconstructor struct {
	src    indexed.Source
	logger *zap.Logger
	pool   pond.Pool
}

func New(src indexed.Source, logger *zap.Logger) *Reconstructor {
	return &Reconstructor{
		src:    src,
		logger: logger,
		pool:   pond.NewPool(6),
	}
}

// Reconstruct returns the exact balances of the given tokens at targetBlock.
//
// excludeAccounts is extended with the zero address, which is mint/burn
// bookkeeping and never a holder. The result is independent of the order in
// which change events are applied: replay is pure summation of deltas.
func (r *Reconstructor) Reconstruct(ctx context.Context, chain string, targetBlock uint64, tokenAddresses, excludeAccounts []string) (*Result, error) {
	tokens := utils.NormalizeAddresses(tokenAddresses)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w (chain %s, block %d)", ErrEmptyTokenSet, chain, targetBlock)
	}
	exclude := utils.NormalizeAddresses(append([]string{utils.ZeroAddress}, excludeAccounts...))

	snapBlock, found, err := r.src.LatestSnapshotBlock(ctx, chain, targetBlock)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot lookup (chain %s, block %d): %w", chain, targetBlock, err)
	}
	if !found {
		return nil, fmt.Errorf("%w (chain %s, block %d)", ErrNoSnapshot, chain, targetBlock)
	}

	lastIndexed, err := r.src.LastIndexedBlock(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("indexer progress (chain %s): %w", chain, err)
	}
	if lastIndexed < targetBlock {
		return nil, fmt.Errorf("%w (chain %s, indexed %d, target %d)", ErrIndexerBehind, chain, lastIndexed, targetBlock)
	}

	// Snapshot rows, diff rows and token metadata address disjoint query
	// shapes and are read-only; fetch them in parallel and merge after all
	// three complete.
	var (
		snapRows []indexed.SnapshotRow
		diffRows []indexed.DiffRow
		metadata []indexed.Token
		snapErr  error
		diffErr  error
		metaErr  error
	)
	group := r.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.Submit(func() {
		if groupCtx.Err() != nil {
			return
		}
		snapRows, snapErr = r.src.SnapshotRows(groupCtx, indexed.RowQuery{
			Chain:        chain,
			Block:        snapBlock,
			TokenIn:      tokens,
			AccountNotIn: exclude,
		})
	})
	group.Submit(func() {
		if groupCtx.Err() != nil {
			return
		}
		diffRows, diffErr = r.src.DiffRows(groupCtx, indexed.DiffQuery{
			Chain:        chain,
			FromBlock:    snapBlock,
			ToBlock:      targetBlock,
			TokenIn:      tokens,
			AccountNotIn: exclude,
		})
	})
	group.Submit(func() {
		if groupCtx.Err() != nil {
			return
		}
		metadata, metaErr = r.src.TokenMetadata(groupCtx, chain, tokens)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.logger.Warn("parallel source fetch encountered error",
			zap.String("chain", chain),
			zap.Uint64("block", targetBlock),
			zap.Error(err))
	}
	if snapErr != nil {
		return nil, fmt.Errorf("fetch snapshot rows at block %d: %w", snapBlock, snapErr)
	}
	if diffErr != nil {
		return nil, fmt.Errorf("fetch diff rows (%d,%d]: %w", snapBlock, targetBlock, diffErr)
	}
	if metaErr != nil {
		return nil, fmt.Errorf("resolve token metadata: %w", metaErr)
	}

	// Every requested token must resolve; metadata is required, never defaulted.
	byAddr := make(map[string]indexed.Token, len(metadata))
	for _, t := range metadata {
		byAddr[utils.NormalizeAddress(t.Address)] = t
	}
	resolved := make([]indexed.Token, 0, len(tokens))
	for _, addr := range tokens {
		t, ok := byAddr[addr]
		if !ok {
			return nil, fmt.Errorf("%w: token %s (chain %s)", indexed.ErrMissingMetadata, addr, chain)
		}
		resolved = append(resolved, t)
	}

	sheet := make(map[string]map[string]*big.Int, len(tokens))
	for _, row := range snapRows {
		amount, err := parseAmount(row.Balance)
		if err != nil {
			return nil, fmt.Errorf("snapshot row (token %s, account %s, block %d): %w", row.Token, row.Account, snapBlock, err)
		}
		add(sheet, row.Token, row.Account, amount)
	}
	for _, row := range diffRows {
		before, err := parseAmount(row.BalanceBefore)
		if err != nil {
			return nil, fmt.Errorf("diff row before (token %s, account %s, block %d): %w", row.Token, row.Account, row.Block, err)
		}
		after, err := parseAmount(row.BalanceAfter)
		if err != nil {
			return nil, fmt.Errorf("diff row after (token %s, account %s, block %d): %w", row.Token, row.Account, row.Block, err)
		}
		// The account may have been created after the snapshot; add starts
		// from zero in that case.
		add(sheet, row.Token, row.Account, new(big.Int).Sub(after, before))
	}

	return &Result{Balances: sheet, Tokens: resolved}, nil
}

// add sums delta into the sheet entry for (token, account), creating it at
// zero when absent.
func add(sheet map[string]map[string]*big.Int, token, account string, delta *big.Int) {
	token = utils.NormalizeAddress(token)
	account = utils.NormalizeAddress(account)
	accounts, ok := sheet[token]
	if !ok {
		accounts = map[string]*big.Int{}
		sheet[token] = accounts
	}
	current, ok := accounts[account]
	if !ok {
		current = new(big.Int)
		accounts[account] = current
	}
	current.Add(current, delta)
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed raw amount %q", s)
	}
	return n, nil
}
