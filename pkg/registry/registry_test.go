package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultscan/holderx/pkg/holdings"
	"go.uber.org/zap/zaptest"
)

const topologyFixture = `[
  {
    "id": "vault-alpha",
    "chain": "base",
    "kind": "standard",
    "shareToken": "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
    "rewardPools": ["0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"],
    "strategy": "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
  },
  {
    "id": "vault-beta",
    "chain": "base",
    "kind": "managed",
    "shareToken": "0x1111111111111111111111111111111111111111",
    "strategy": "0x2222222222222222222222222222222222222222",
    "manager": {
      "shareToken": "0x3333333333333333333333333333333333333333",
      "strategy": "0x4444444444444444444444444444444444444444"
    }
  },
  {
    "id": "vault-gamma",
    "chain": "arbitrum",
    "kind": "standard",
    "shareToken": "0x5555555555555555555555555555555555555555",
    "strategy": "0x6666666666666666666666666666666666666666"
  }
]`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topologies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_LoadsAndNormalizes(t *testing.T) {
	r, err := New(zaptest.NewLogger(t), writeFixture(t, topologyFixture))
	require.NoError(t, err)

	base := r.List("base")
	require.Len(t, base, 2)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", base[0].ShareToken)
	assert.Len(t, r.List("arbitrum"), 1)
	assert.Empty(t, r.List("mainnet"))
	assert.ElementsMatch(t, []string{"base", "arbitrum"}, r.Chains())
}

func TestNew_RejectsInvalidEntry(t *testing.T) {
	bad := `[{"id": "broken", "chain": "base", "kind": "managed",
		"shareToken": "0x1111111111111111111111111111111111111111",
		"strategy": "0x2222222222222222222222222222222222222222"}]`
	_, err := New(zaptest.NewLogger(t), writeFixture(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager block")
}

func TestReload_DropsVanishedChains(t *testing.T) {
	path := writeFixture(t, topologyFixture)
	r, err := New(zaptest.NewLogger(t), path)
	require.NoError(t, err)

	trimmed := `[
	  {
	    "id": "vault-gamma",
	    "chain": "arbitrum",
	    "kind": "standard",
	    "shareToken": "0x5555555555555555555555555555555555555555",
	    "strategy": "0x6666666666666666666666666666666666666666"
	  }
	]`
	require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o600))
	require.NoError(t, r.Reload())

	assert.Empty(t, r.List("base"))
	assert.Len(t, r.List("arbitrum"), 1)
}

func TestReload_ParseFailureKeepsPreviousView(t *testing.T) {
	path := writeFixture(t, topologyFixture)
	r, err := New(zaptest.NewLogger(t), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.Error(t, r.Reload())
	assert.Len(t, r.List("base"), 2)
}

func TestResolveOne(t *testing.T) {
	r, err := New(zaptest.NewLogger(t), writeFixture(t, topologyFixture))
	require.NoError(t, err)

	got, err := r.ResolveOne("base", ByVaultAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	require.NoError(t, err)
	assert.Equal(t, "vault-alpha", got.ID)

	got, err = r.ResolveOne("base", ByIDPrefix("vault-beta"))
	require.NoError(t, err)
	assert.Equal(t, holdings.KindManaged, got.Kind)

	_, err = r.ResolveOne("base", ByIDPrefix("nope"))
	assert.ErrorIs(t, err, ErrVaultNotFound)

	_, err = r.ResolveOne("base", ByIDPrefix("vault-"))
	assert.ErrorIs(t, err, ErrVaultAmbiguous)

	_, err = r.ResolveOne("mainnet", ByIDPrefix("vault-alpha"))
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestByStrategy(t *testing.T) {
	r, err := New(zaptest.NewLogger(t), writeFixture(t, topologyFixture))
	require.NoError(t, err)

	// Matches on the manager strategy too.
	matches := r.Find("base", ByStrategy("0x4444444444444444444444444444444444444444"))
	require.Len(t, matches, 1)
	assert.Equal(t, "vault-beta", matches[0].ID)
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	dup := `[
	  {"id": "v", "chain": "base", "kind": "standard",
	   "shareToken": "0x1111111111111111111111111111111111111111",
	   "strategy": "0x2222222222222222222222222222222222222222"},
	  {"id": "v", "chain": "base", "kind": "standard",
	   "shareToken": "0x3333333333333333333333333333333333333333",
	   "strategy": "0x4444444444444444444444444444444444444444"}
	]`
	_, err := New(zaptest.NewLogger(t), writeFixture(t, dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate vault id")
}
