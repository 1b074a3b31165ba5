package holdings

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/reconstruct"
	"go.uber.org/zap/zaptest"
)

const (
	outerShare   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	outerPool    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	outerStrat   = "0xcccccccccccccccccccccccccccccccccccccccc"
	managerShare = "0xdddddddddddddddddddddddddddddddddddddddd"
	managerStrat = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

type fakeRec struct {
	res *reconstruct.Result
	err error

	gotChain  string
	gotBlock  uint64
	gotTokens []string
}

func (f *fakeRec) Reconstruct(_ context.Context, chain string, targetBlock uint64, tokenAddresses, _ []string) (*reconstruct.Result, error) {
	f.gotChain = chain
	f.gotBlock = targetBlock
	f.gotTokens = tokenAddresses
	return f.res, f.err
}

func sheet(entries map[string]map[string]int64) map[string]map[string]*big.Int {
	out := make(map[string]map[string]*big.Int, len(entries))
	for token, accounts := range entries {
		m := make(map[string]*big.Int, len(accounts))
		for account, amount := range accounts {
			m[account] = big.NewInt(amount)
		}
		out[token] = m
	}
	return out
}

func metaFor(addresses ...string) []indexed.Token {
	out := make([]indexed.Token, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, indexed.Token{Address: a, Name: "Token", Symbol: "TKN", Decimals: 18})
	}
	return out
}

func standardTopology() Topology {
	return Topology{
		ID:          "vault-std",
		Chain:       "base",
		Kind:        KindStandard,
		ShareToken:  outerShare,
		RewardPools: []string{outerPool},
		Strategy:    outerStrat,
	}
}

func managedTopology() Topology {
	t := standardTopology()
	t.ID = "vault-mgd"
	t.Kind = KindManaged
	t.Manager = &Manager{
		ShareToken: managerShare,
		Strategy:   managerStrat,
	}
	return t
}

func balanceOf(res *Result, holder string) *big.Int {
	for _, rec := range res.Holders {
		if rec.Holder == holder {
			return rec.Balance
		}
	}
	return nil
}

func TestNormalizeStandard_SumsAcrossConstituents(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare: {alice: 600, bob: 400},
			outerPool:  {alice: 50},
		}),
		Tokens: metaFor(outerShare, outerPool),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), standardTopology(), 1000, nil)
	require.NoError(t, err)

	assert.Equal(t, "base", rec.gotChain)
	assert.Equal(t, uint64(1000), rec.gotBlock)
	assert.ElementsMatch(t, []string{outerShare, outerPool}, rec.gotTokens)

	require.Len(t, res.Holders, 2)
	assert.Equal(t, big.NewInt(650), balanceOf(res, alice))
	assert.Equal(t, big.NewInt(400), balanceOf(res, bob))
	assert.Equal(t, outerShare, res.Base.Address)

	// Share token first in the token order, so its contribution leads.
	require.Len(t, res.Holders[0].Sources, 2)
	assert.Equal(t, outerShare, res.Holders[0].Sources[0].Token)
	assert.Equal(t, big.NewInt(600), res.Holders[0].Sources[0].Balance)
}

func TestNormalizeStandard_ExcludesOperationalAccounts(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare: {alice: 100, outerStrat: 9000, outerPool: 77},
		}),
		Tokens: metaFor(outerShare, outerPool),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), standardTopology(), 1000, nil)
	require.NoError(t, err)

	require.Len(t, res.Holders, 1)
	assert.Equal(t, alice, res.Holders[0].Holder)
}

func TestNormalizeManaged_ProRataConversion(t *testing.T) {
	// Manager shares held by the outer strategy: 50. Outer share supply: 100
	// (alice 80, bob 20). Alice converts to floor(80*50/100)=40, bob to
	// floor(20*50/100)=10. Carol additionally holds 30 manager shares directly.
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare:   {alice: 80, bob: 20},
			managerShare: {outerStrat: 50, carol: 30},
		}),
		Tokens: metaFor(outerShare, outerPool, managerShare),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(40), balanceOf(res, alice))
	assert.Equal(t, big.NewInt(10), balanceOf(res, bob))
	assert.Equal(t, big.NewInt(30), balanceOf(res, carol))
	assert.Equal(t, managerShare, res.Base.Address)

	// Conservation: converted balances never exceed the aggregate claim.
	total := new(big.Int)
	total.Add(balanceOf(res, alice), balanceOf(res, bob))
	assert.LessOrEqual(t, total.Cmp(big.NewInt(50)), 0)
}

func TestNormalizeManaged_DirectAndConvertedMerge(t *testing.T) {
	// Alice holds outer shares AND manager shares directly; both legs merge
	// into one record.
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare:   {alice: 100},
			managerShare: {outerStrat: 60, alice: 15},
		}),
		Tokens: metaFor(outerShare, outerPool, managerShare),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)

	require.Len(t, res.Holders, 1)
	assert.Equal(t, big.NewInt(75), res.Holders[0].Balance)
	require.Len(t, res.Holders[0].Sources, 2)
}

func TestNormalizeManaged_ZeroSupplySkipsDivision(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare:   {},
			managerShare: {carol: 30},
		}),
		Tokens: metaFor(outerShare, outerPool, managerShare),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)

	require.Len(t, res.Holders, 1)
	assert.Equal(t, carol, res.Holders[0].Holder)
}

func TestNormalizeManaged_ZeroClaimYieldsZeroOuterBalances(t *testing.T) {
	// Outer holders exist but the strategy holds no manager shares; their
	// converted balances are zero and drop below the default floor.
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare:   {alice: 80, bob: 20},
			managerShare: {carol: 30},
		}),
		Tokens: metaFor(outerShare, outerPool, managerShare),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)

	require.Len(t, res.Holders, 1)
	assert.Equal(t, carol, res.Holders[0].Holder)
}

func TestNormalize_FloorFilter(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare: {alice: 100, bob: 50, carol: 49},
		}),
		Tokens: metaFor(outerShare, outerPool),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), standardTopology(), 1000, big.NewInt(50))
	require.NoError(t, err)

	// Floor is inclusive: bob at exactly 50 stays, carol at 49 drops.
	require.Len(t, res.Holders, 2)
	assert.Equal(t, alice, res.Holders[0].Holder)
	assert.Equal(t, bob, res.Holders[1].Holder)
}

func TestNormalize_SortedByBalanceThenHolder(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare: {carol: 100, alice: 100, bob: 200},
		}),
		Tokens: metaFor(outerShare, outerPool),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	res, err := svc.NormalizeHolders(context.Background(), standardTopology(), 1000, nil)
	require.NoError(t, err)

	require.Len(t, res.Holders, 3)
	assert.Equal(t, bob, res.Holders[0].Holder)
	assert.Equal(t, alice, res.Holders[1].Holder)
	assert.Equal(t, carol, res.Holders[2].Holder)
}

func TestNormalize_Idempotent(t *testing.T) {
	rec := &fakeRec{res: &reconstruct.Result{
		Balances: sheet(map[string]map[string]int64{
			outerShare:   {alice: 80, bob: 20},
			managerShare: {outerStrat: 50},
		}),
		Tokens: metaFor(outerShare, outerPool, managerShare),
	}}

	svc := NewService(rec, zaptest.NewLogger(t))
	first, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)
	second, err := svc.NormalizeHolders(context.Background(), managedTopology(), 1000, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Holders, second.Holders)
}

func TestNormalize_UnknownKindFails(t *testing.T) {
	topo := standardTopology()
	topo.Kind = Kind("exotic")

	svc := NewService(&fakeRec{res: &reconstruct.Result{
		Balances: sheet(nil),
		Tokens:   metaFor(outerShare, outerPool),
	}}, zaptest.NewLogger(t))

	_, err := svc.NormalizeHolders(context.Background(), topo, 1000, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNormalize_ReconstructErrorPropagates(t *testing.T) {
	svc := NewService(&fakeRec{err: reconstruct.ErrNoSnapshot}, zaptest.NewLogger(t))
	_, err := svc.NormalizeHolders(context.Background(), standardTopology(), 1000, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconstruct.ErrNoSnapshot)
}
