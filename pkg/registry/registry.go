// Package registry loads vault topology definitions from a JSON file and
// keeps them queryable in memory, reloading on a cron schedule so edits to
// the file show up without a restart.
package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"github.com/vaultscan/holderx/pkg/holdings"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrVaultNotFound means no registered vault matched the selector.
	ErrVaultNotFound = errors.New("vault not found")
	// ErrVaultAmbiguous means the selector matched more than one vault.
	ErrVaultAmbiguous = errors.New("vault selector is ambiguous")
)

// Predicate selects topologies within a chain.
type Predicate func(t holdings.Topology) bool

// ByIDPrefix matches vaults whose id starts with the given prefix.
func ByIDPrefix(prefix string) Predicate {
	return func(t holdings.Topology) bool {
		return len(t.ID) >= len(prefix) && t.ID[:len(prefix)] == prefix
	}
}

// ByVaultAddress matches the vault whose share token is the given address.
func ByVaultAddress(address string) Predicate {
	address = utils.NormalizeAddress(address)
	return func(t holdings.Topology) bool {
		return t.ShareToken == address
	}
}

// ByStrategy matches vaults operated by the given strategy address.
func ByStrategy(address string) Predicate {
	address = utils.NormalizeAddress(address)
	return func(t holdings.Topology) bool {
		return t.Strategy == address || (t.Manager != nil && t.Manager.Strategy == address)
	}
}

type Registry struct {
	logger *zap.Logger
	path   string
	// byChain maps chain id to its topologies, replaced wholesale on reload.
	byChain *xsync.Map[string, []holdings.Topology]
	cron    *cron.Cron
}

func New(logger *zap.Logger, path string) (*Registry, error) {
	r := &Registry{
		logger:  logger,
		path:    path,
		byChain: xsync.NewMap[string, []holdings.Topology](),
		cron:    cron.New(),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the topology file and swaps the in-memory view. A file
// that fails to parse or validate leaves the previous view untouched.
func (r *Registry) Reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read topology file %s: %w", r.path, err)
	}

	var entries []holdings.Topology
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse topology file %s: %w", r.path, err)
	}

	next := map[string][]holdings.Topology{}
	seen := map[string]bool{}
	for i, entry := range entries {
		entry = entry.Normalized()
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("topology entry %d (%s): %w", i, entry.ID, err)
		}
		if seen[entry.Chain+"/"+entry.ID] {
			return fmt.Errorf("duplicate vault id %s on chain %s", entry.ID, entry.Chain)
		}
		seen[entry.Chain+"/"+entry.ID] = true
		next[entry.Chain] = append(next[entry.Chain], entry)
	}

	// Drop chains that vanished from the file before installing the new view.
	r.byChain.Range(func(chain string, _ []holdings.Topology) bool {
		if _, ok := next[chain]; !ok {
			r.byChain.Delete(chain)
		}
		return true
	})
	for chain, list := range next {
		r.byChain.Store(chain, list)
	}

	r.logger.Info("topology registry loaded",
		zap.String("path", r.path),
		zap.Int("vaults", len(entries)),
		zap.Int("chains", len(next)))
	return nil
}

// StartRefresh schedules periodic reloads. Reload failures keep the previous
// view and are logged, not fatal.
func (r *Registry) StartRefresh(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.Reload(); err != nil {
			r.logger.Warn("topology refresh failed, keeping previous configuration", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule topology refresh %q: %w", spec, err)
	}
	r.cron.Start()
	return nil
}

func (r *Registry) Stop() {
	r.cron.Stop()
}

// Chains returns every chain id with at least one registered vault.
func (r *Registry) Chains() []string {
	var out []string
	r.byChain.Range(func(chain string, _ []holdings.Topology) bool {
		out = append(out, chain)
		return true
	})
	return out
}

// List returns the registered topologies for the chain.
func (r *Registry) List(chain string) []holdings.Topology {
	list, _ := r.byChain.Load(chain)
	return list
}

// Find returns every topology on the chain matching the predicate.
func (r *Registry) Find(chain string, pred Predicate) []holdings.Topology {
	var out []holdings.Topology
	for _, t := range r.List(chain) {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// ResolveOne resolves the predicate to exactly one vault, failing with
// ErrVaultNotFound on zero matches and ErrVaultAmbiguous on several.
func (r *Registry) ResolveOne(chain string, pred Predicate) (holdings.Topology, error) {
	matches := r.Find(chain, pred)
	switch len(matches) {
	case 0:
		return holdings.Topology{}, fmt.Errorf("%w (chain %s)", ErrVaultNotFound, chain)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		return holdings.Topology{}, fmt.Errorf("%w (chain %s, matched %v)", ErrVaultAmbiguous, chain, ids)
	}
}
