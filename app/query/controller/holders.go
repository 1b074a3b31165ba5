package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/vaultscan/holderx/pkg/registry"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

type tokenInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type sourceEntry struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type holderEntry struct {
	Address string        `json:"address"`
	Balance string        `json:"balance"`
	Display string        `json:"display"`
	Sources []sourceEntry `json:"sources"`
}

type holdersResponse struct {
	Vault     string        `json:"vault"`
	Chain     string        `json:"chain"`
	Block     uint64        `json:"block"`
	BaseToken tokenInfo     `json:"baseToken"`
	Holders   []holderEntry `json:"holders"`
}

// HandleHolders returns every real holder of a vault at a block, with
// balances normalized to the vault structure's base share token. The vault
// selector is either the share token address or a vault id prefix.
func (c *Controller) HandleHolders(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	vault := mux.Vars(r)["vault"]
	if chain == "" || vault == "" {
		writeError(w, http.StatusBadRequest, "missing chain id or vault selector")
		return
	}

	block, err := parseBlock(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	floor, err := parseFloor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var pred registry.Predicate
	if utils.ValidAddress(vault) {
		pred = registry.ByVaultAddress(vault)
	} else {
		pred = registry.ByIDPrefix(vault)
	}
	topo, err := c.App.Registry.ResolveOne(chain, pred)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	floorKey := "+"
	if floor != nil {
		floorKey = floor.String()
	}
	cacheKey := fmt.Sprintf("holders:%s:%s:%d:%s", chain, topo.ID, block, floorKey)

	var cached holdersResponse
	if c.App.Cache.GetJSON(r.Context(), cacheKey, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	res, err := c.App.Holdings.NormalizeHolders(r.Context(), topo, block, floor)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			c.App.Logger.Error("holder normalization failed",
				zap.String("chain", chain),
				zap.String("vault", topo.ID),
				zap.Uint64("block", block),
				zap.Error(err))
			writeError(w, status, "holder normalization failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	resp := holdersResponse{
		Vault: topo.ID,
		Chain: chain,
		Block: block,
		BaseToken: tokenInfo{
			Address:  res.Base.Address,
			Name:     res.Base.Name,
			Symbol:   res.Base.Symbol,
			Decimals: res.Base.Decimals,
		},
		Holders: make([]holderEntry, 0, len(res.Holders)),
	}
	for _, h := range res.Holders {
		sources := make([]sourceEntry, 0, len(h.Sources))
		for _, s := range h.Sources {
			sources = append(sources, sourceEntry{Token: s.Token, Balance: s.Balance.String()})
		}
		resp.Holders = append(resp.Holders, holderEntry{
			Address: h.Holder,
			Balance: h.Balance.String(),
			Display: displayAmount(h.Balance.String(), res.Base.Decimals),
			Sources: sources,
		})
	}

	c.App.Cache.SetJSON(r.Context(), cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

// displayAmount renders a raw integer amount as a human-readable decimal
// string using the token's decimals.
func displayAmount(raw string, decimals uint8) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return d.Shift(-int32(decimals)).String()
}
