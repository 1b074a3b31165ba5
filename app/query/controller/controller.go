package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/vaultscan/holderx/app/query/types"
	"github.com/vaultscan/holderx/pkg/indexed"
	"github.com/vaultscan/holderx/pkg/reconstruct"
	"github.com/vaultscan/holderx/pkg/registry"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods("GET")

	r.HandleFunc("/chains/{chain}/vaults", c.HandleVaults).Methods("GET")
	r.HandleFunc("/chains/{chain}/vaults/{vault}/holders", c.HandleHolders).Methods("GET")
	r.HandleFunc("/chains/{chain}/balances", c.HandleBalances).Methods("POST")

	return r, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Development: Echo back the origin to allow credentials with any origin
		// TODO: Restrict this in production to specific domains
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrVaultAmbiguous):
		return http.StatusConflict
	case errors.Is(err, reconstruct.ErrEmptyTokenSet):
		return http.StatusBadRequest
	case errors.Is(err, reconstruct.ErrNoSnapshot),
		errors.Is(err, reconstruct.ErrIndexerBehind),
		errors.Is(err, indexed.ErrMissingMetadata):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
