package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the ledger routes. Mutating routes require a signed request
// whose nonce is within nonceWindow of the server clock.
func NewRouter(h *Handlers, maxBodyBytes int64, nonceWindow time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(traceMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthcheck", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/registry", h.GetRegistry)
		r.Get("/stats", h.GetStats)
		r.Get("/servers", h.ListServers)
		r.Get("/servers/{address}", h.GetServer)
		r.Get("/servers/{address}/delegations", h.ListServerDelegations)
		r.Get("/delegations", h.ListDelegations)
		r.Get("/delegations/{address}", h.GetDelegation)
		r.Get("/balances/{owner}", h.GetBalance)

		r.Group(func(r chi.Router) {
			r.Use(signatureMiddleware(maxBodyBytes, nonceWindow))

			r.Post("/registry/initialize", h.Initialize)

			r.Post("/servers", h.AddServer)
			r.Put("/servers/name", h.UpdateServer)
			r.Post("/servers/deposit", h.Deposit)
			r.Post("/servers/withdraw", h.Withdraw)
			r.Post("/servers/remove", h.RemoveServer)

			r.Post("/delegations/deposit", h.DelegatedDeposit)
			r.Post("/delegations/withdraw", h.DelegatedWithdraw)
			r.Post("/delegations/remove", h.RemoveDelegation)

			r.Post("/faucet/mint", h.MintTokens)
		})
	})

	return r
}
