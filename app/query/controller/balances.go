package controller

import (
	"net/http"
	"sort"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

type balancesRequest struct {
	Block           uint64   `json:"block"`
	Tokens          []string `json:"tokens"`
	ExcludeAccounts []string `json:"excludeAccounts,omitempty"`
}

type balanceRow struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type balancesResponse struct {
	Chain    string       `json:"chain"`
	Block    uint64       `json:"block"`
	Tokens   []tokenInfo  `json:"tokens"`
	Balances []balanceRow `json:"balances"`
}

// HandleBalances reconstructs raw balances of arbitrary tokens at a block,
// without any vault normalization.
func (c *Controller) HandleBalances(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	if chain == "" {
		writeError(w, http.StatusBadRequest, "missing chain id")
		return
	}

	var req balancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Block == 0 {
		writeError(w, http.StatusBadRequest, errInvalidBlock.Error())
		return
	}
	if len(req.Tokens) == 0 {
		writeError(w, http.StatusBadRequest, "missing token addresses")
		return
	}
	for _, addr := range append(append([]string{}, req.Tokens...), req.ExcludeAccounts...) {
		if !utils.ValidAddress(addr) {
			writeError(w, http.StatusBadRequest, "invalid address "+addr)
			return
		}
	}

	res, err := c.App.Reconstructor.Reconstruct(r.Context(), chain, req.Block, req.Tokens, req.ExcludeAccounts)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			c.App.Logger.Error("balance reconstruction failed",
				zap.String("chain", chain),
				zap.Uint64("block", req.Block),
				zap.Error(err))
			writeError(w, status, "balance reconstruction failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	resp := balancesResponse{
		Chain:  chain,
		Block:  req.Block,
		Tokens: make([]tokenInfo, 0, len(res.Tokens)),
	}
	for _, t := range res.Tokens {
		resp.Tokens = append(resp.Tokens, tokenInfo{
			Address:  t.Address,
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	for token, accounts := range res.Balances {
		for account, amount := range accounts {
			if amount.Sign() == 0 {
				continue
			}
			resp.Balances = append(resp.Balances, balanceRow{Token: token, Account: account, Balance: amount.String()})
		}
	}
	sort.Slice(resp.Balances, func(i, j int) bool {
		if resp.Balances[i].Token != resp.Balances[j].Token {
			return resp.Balances[i].Token < resp.Balances[j].Token
		}
		return resp.Balances[i].Account < resp.Balances[j].Account
	})

	writeJSON(w, http.StatusOK, resp)
}
