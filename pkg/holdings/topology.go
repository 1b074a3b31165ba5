package holdings

import (
	"fmt"

	"github.com/vaultscan/holderx/pkg/utils"
)

// Kind discriminates the two vault structures.
type Kind string

const (
	// KindStandard is a vault with its own share token, reward pools and
	// boosts, denominated in its own share token.
	KindStandard Kind = "standard"
	// KindManaged is a vault whose share token is itself backed by deposits
	// into an underlying manager vault; holder balances are re-expressed in
	// the manager's share token.
	KindManaged Kind = "managed"
)

// Manager describes the underlying vault of a managed topology.
type Manager struct {
	ShareToken  string   `json:"shareToken"`
	RewardPools []string `json:"rewardPools,omitempty"`
	Boosts      []string `json:"boosts,omitempty"`
	Strategy    string   `json:"strategy"`
}

// Topology describes the constituent contracts of one vault. Addresses are
// normalized to lowercase by Normalized before any lookup or math.
type Topology struct {
	ID          string   `json:"id"`
	Chain       string   `json:"chain"`
	Kind        Kind     `json:"kind"`
	ShareToken  string   `json:"shareToken"`
	RewardPools []string `json:"rewardPools,omitempty"`
	Boosts      []string `json:"boosts,omitempty"`
	Strategy    string   `json:"strategy"`
	Manager     *Manager `json:"manager,omitempty"`
}

// Normalized returns a copy with every address lowercased.
func (t Topology) Normalized() Topology {
	t.ShareToken = utils.NormalizeAddress(t.ShareToken)
	t.RewardPools = utils.NormalizeAddresses(t.RewardPools)
	t.Boosts = utils.NormalizeAddresses(t.Boosts)
	t.Strategy = utils.NormalizeAddress(t.Strategy)
	if t.Manager != nil {
		m := *t.Manager
		m.ShareToken = utils.NormalizeAddress(m.ShareToken)
		m.RewardPools = utils.NormalizeAddresses(m.RewardPools)
		m.Boosts = utils.NormalizeAddresses(m.Boosts)
		m.Strategy = utils.NormalizeAddress(m.Strategy)
		t.Manager = &m
	}
	return t
}

// Validate checks structural consistency: a managed topology carries a
// manager block, a standard one does not, and the required addresses are
// well-formed.
func (t Topology) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("missing vault id")
	}
	if t.Chain == "" {
		return fmt.Errorf("missing chain")
	}
	switch t.Kind {
	case KindStandard:
		if t.Manager != nil {
			return fmt.Errorf("standard vault must not carry a manager block")
		}
	case KindManaged:
		if t.Manager == nil {
			return fmt.Errorf("managed vault requires a manager block")
		}
		if !utils.ValidAddress(t.Manager.ShareToken) {
			return fmt.Errorf("invalid manager share token %q", t.Manager.ShareToken)
		}
		if !utils.ValidAddress(t.Manager.Strategy) {
			return fmt.Errorf("invalid manager strategy %q", t.Manager.Strategy)
		}
		for _, a := range append(append([]string{}, t.Manager.RewardPools...), t.Manager.Boosts...) {
			if !utils.ValidAddress(a) {
				return fmt.Errorf("invalid manager constituent address %q", a)
			}
		}
	default:
		return fmt.Errorf("unknown vault kind %q", t.Kind)
	}
	if !utils.ValidAddress(t.ShareToken) {
		return fmt.Errorf("invalid share token %q", t.ShareToken)
	}
	if !utils.ValidAddress(t.Strategy) {
		return fmt.Errorf("invalid strategy %q", t.Strategy)
	}
	for _, a := range append(append([]string{}, t.RewardPools...), t.Boosts...) {
		if !utils.ValidAddress(a) {
			return fmt.Errorf("invalid constituent address %q", a)
		}
	}
	return nil
}

// outerTokens returns the vault's own constituent tokens: share token,
// reward pools, boosts.
func (t Topology) outerTokens() []string {
	out := make([]string, 0, 1+len(t.RewardPools)+len(t.Boosts))
	out = append(out, t.ShareToken)
	out = append(out, t.RewardPools...)
	out = append(out, t.Boosts...)
	return out
}

// managerTokens returns the manager's constituent tokens, nil for a standard
// topology.
func (t Topology) managerTokens() []string {
	if t.Manager == nil {
		return nil
	}
	out := make([]string, 0, 1+len(t.Manager.RewardPools)+len(t.Manager.Boosts))
	out = append(out, t.Manager.ShareToken)
	out = append(out, t.Manager.RewardPools...)
	out = append(out, t.Manager.Boosts...)
	return out
}

// ConstituentTokens returns every token whose holders contribute to the
// vault's normalized balances.
func (t Topology) ConstituentTokens() []string {
	return utils.NormalizeAddresses(append(t.outerTokens(), t.managerTokens()...))
}

// OperationalAccounts returns the addresses that can never be legitimate
// end-user holders: every strategy, plus every constituent token contract
// itself (a contract cannot hold its own family's tokens as an end user).
func (t Topology) OperationalAccounts() []string {
	ops := append(t.ConstituentTokens(), t.Strategy)
	if t.Manager != nil {
		ops = append(ops, t.Manager.Strategy)
	}
	return utils.NormalizeAddresses(ops)
}

// BaseToken returns the address of the base denomination: the manager's
// share token for a managed vault, the vault's own share token otherwise.
func (t Topology) BaseToken() string {
	if t.Kind == KindManaged && t.Manager != nil {
		return utils.NormalizeAddress(t.Manager.ShareToken)
	}
	return utils.NormalizeAddress(t.ShareToken)
}
