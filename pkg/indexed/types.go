package indexed

import (
	"context"
	"errors"
)

// ErrMissingMetadata marks a token whose name, symbol or decimals the
// indexing service does not know. Raw-to-human conversion is impossible
// without decimals, so this is a terminal data error, never a default.
var ErrMissingMetadata = errors.New("token metadata missing")

// Token is the resolved metadata of one tracked token contract.
type Token struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// tokenRow is the wire form of a token metadata row. Pointer fields let the
// client distinguish "unknown" from legitimate zero values.
type tokenRow struct {
	Address  string  `json:"address"`
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *uint8  `json:"decimals"`
}

// SnapshotRow is one (token, account) balance captured by a periodic
// snapshot. Balances travel as decimal strings; they are parsed into big
// integers only by the reconstruction core.
type SnapshotRow struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// DiffRow is one balance-change event. The delta (after minus before) is the
// unit of replay.
type DiffRow struct {
	Token         string `json:"token"`
	Account       string `json:"account"`
	Block         uint64 `json:"block"`
	BalanceBefore string `json:"balanceBefore"`
	BalanceAfter  string `json:"balanceAfter"`
}

// RowQuery selects the snapshot rows of one snapshot block: token address in
// TokenIn, account address not in AccountNotIn.
type RowQuery struct {
	Chain        string
	Block        uint64
	TokenIn      []string
	AccountNotIn []string
}

// DiffQuery selects balance-change rows over the half-open block interval
// (FromBlock, ToBlock], same token/account filters as RowQuery.
type DiffQuery struct {
	Chain        string
	FromBlock    uint64
	ToBlock      uint64
	TokenIn      []string
	AccountNotIn []string
}

// Source is the read surface of the external indexing service that the
// balance reconstructor depends on. *Client implements it; tests substitute
// fakes.
type Source interface {
	// LastIndexedBlock returns the highest block the service has fully
	// processed for a chain.
	LastIndexedBlock(ctx context.Context, chain string) (uint64, error)
	// LatestSnapshotBlock returns the most recent snapshot block at or
	// before the given block, with found=false when no such snapshot exists.
	LatestSnapshotBlock(ctx context.Context, chain string, atOrBefore uint64) (block uint64, found bool, err error)
	// SnapshotRows returns every matching snapshot balance row.
	SnapshotRows(ctx context.Context, q RowQuery) ([]SnapshotRow, error)
	// DiffRows returns every matching balance-change row.
	DiffRows(ctx context.Context, q DiffQuery) ([]DiffRow, error)
	// TokenMetadata resolves metadata for the given token addresses. Rows
	// with incomplete metadata fail with ErrMissingMetadata.
	TokenMetadata(ctx context.Context, chain string, addresses []string) ([]Token, error)
}
