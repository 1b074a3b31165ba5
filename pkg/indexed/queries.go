package indexed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vaultscan/holderx/pkg/paged"
)

// rowsPage is the wire form of one page of a paginated row query.
type rowsPage[T any] struct {
	Rows  []T `json:"rows"`
	Count int `json:"count"`
}

// listRows pulls every row of a paginated query through the paged fold,
// adding offset/limit to the request payload per page.
func listRows[T any](ctx context.Context, c *Client, path string, args map[string]any) ([]T, error) {
	opts := paged.Options{PageSize: c.pageSize, MaxFetch: c.maxRows, Delay: c.pageDelay}
	return paged.FetchAll(ctx, opts,
		func(ctx context.Context, offset, limit int) ([]T, error) {
			payload := make(map[string]any, len(args)+2)
			for k, v := range args {
				payload[k] = v
			}
			payload["offset"] = offset
			payload["limit"] = limit
			var page rowsPage[T]
			if err := c.doJSON(ctx, http.MethodPost, path, payload, &page); err != nil {
				return nil, err
			}
			return page.Rows, nil
		},
		func(page []T) []int { return []int{len(page)} },
		func(acc, page []T) []T { return append(acc, page...) },
	)
}

// LastIndexedBlock returns the highest block the service has fully processed
// for the given chain.
func (c *Client) LastIndexedBlock(ctx context.Context, chain string) (uint64, error) {
	var out struct {
		LastIndexedBlock uint64 `json:"lastIndexedBlock"`
	}
	if err := c.doJSON(ctx, http.MethodPost, statusPath, map[string]any{"chain": chain}, &out); err != nil {
		return 0, fmt.Errorf("indexer status (chain %s): %w", chain, err)
	}
	return out.LastIndexedBlock, nil
}

// LatestSnapshotBlock returns the most recent periodic snapshot block at or
// before the given block. found is false when no snapshot covers that range.
func (c *Client) LatestSnapshotBlock(ctx context.Context, chain string, atOrBefore uint64) (uint64, bool, error) {
	var out struct {
		Found bool   `json:"found"`
		Block uint64 `json:"block"`
	}
	payload := map[string]any{"chain": chain, "atOrBeforeBlock": atOrBefore}
	if err := c.doJSON(ctx, http.MethodPost, latestSnapshotPath, payload, &out); err != nil {
		return 0, false, fmt.Errorf("latest snapshot (chain %s, block %d): %w", chain, atOrBefore, err)
	}
	return out.Block, out.Found, nil
}

// SnapshotRows returns every snapshot balance row matching the query.
func (c *Client) SnapshotRows(ctx context.Context, q RowQuery) ([]SnapshotRow, error) {
	rows, err := listRows[SnapshotRow](ctx, c, snapshotRowsPath, map[string]any{
		"chain":        q.Chain,
		"block":        q.Block,
		"tokenIn":      q.TokenIn,
		"accountNotIn": q.AccountNotIn,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot rows (chain %s, block %d): %w", q.Chain, q.Block, err)
	}
	return rows, nil
}

// DiffRows returns every balance-change row with block in (FromBlock, ToBlock].
func (c *Client) DiffRows(ctx context.Context, q DiffQuery) ([]DiffRow, error) {
	rows, err := listRows[DiffRow](ctx, c, diffRowsPath, map[string]any{
		"chain":        q.Chain,
		"fromBlock":    q.FromBlock,
		"toBlock":      q.ToBlock,
		"tokenIn":      q.TokenIn,
		"accountNotIn": q.AccountNotIn,
	})
	if err != nil {
		return nil, fmt.Errorf("diff rows (chain %s, blocks (%d,%d]): %w", q.Chain, q.FromBlock, q.ToBlock, err)
	}
	return rows, nil
}

// TokenMetadata resolves metadata for the given token addresses. A row with a
// missing name, symbol or decimals fails the whole call: downstream math and
// formatting must never run against defaulted metadata.
func (c *Client) TokenMetadata(ctx context.Context, chain string, addresses []string) ([]Token, error) {
	rows, err := listRows[tokenRow](ctx, c, tokensPath, map[string]any{
		"chain":     chain,
		"addresses": addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("token metadata (chain %s): %w", chain, err)
	}

	out := make([]Token, 0, len(rows))
	for _, row := range rows {
		if row.Name == nil || row.Symbol == nil || row.Decimals == nil {
			return nil, fmt.Errorf("%w: token %s (chain %s)", ErrMissingMetadata, row.Address, chain)
		}
		out = append(out, Token{
			Address:  row.Address,
			Name:     *row.Name,
			Symbol:   *row.Symbol,
			Decimals: *row.Decimals,
		})
	}
	return out, nil
}
