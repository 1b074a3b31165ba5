package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vaultscan/holderx/pkg/holdings"
)

type vaultSummary struct {
	ID         string        `json:"id"`
	Kind       holdings.Kind `json:"kind"`
	ShareToken string        `json:"shareToken"`
	Strategy   string        `json:"strategy"`
	BaseToken  string        `json:"baseToken"`
}

// HandleVaults lists the vaults registered for a chain.
func (c *Controller) HandleVaults(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	if chain == "" {
		writeError(w, http.StatusBadRequest, "missing chain id")
		return
	}

	topologies := c.App.Registry.List(chain)
	out := make([]vaultSummary, 0, len(topologies))
	for _, t := range topologies {
		out = append(out, vaultSummary{
			ID:         t.ID,
			Kind:       t.Kind,
			ShareToken: t.ShareToken,
			Strategy:   t.Strategy,
			BaseToken:  t.BaseToken(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"vaults": out})
}
