package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Probe the indexer through one registered chain; they all share the
	// same service.
	if chains := c.App.Registry.Chains(); len(chains) > 0 {
		if _, err := c.App.Source.LastIndexedBlock(ctx, chains[0]); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "indexer service unreachable"})
			return
		}
	}

	if err := c.App.Cache.Health(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "cache connection error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
