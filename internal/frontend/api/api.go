// Package api implements the versioned HTTP surface: compute
// submission and retrieval, and the OAuth passthrough routes.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/chemcloud-org/chemcloud/internal/backend"
	"github.com/chemcloud-org/chemcloud/internal/broker"
	"github.com/chemcloud-org/chemcloud/internal/config"
	"github.com/chemcloud-org/chemcloud/internal/frontend/auth"
)

// Deferrer schedules work to run after the response has left the
// gateway, detached from the request's cancellation scope.
type Deferrer interface {
	Defer(fn func(ctx context.Context))
}

// API wires the compute core to its collaborators.
type API struct {
	cfg      *config.Config
	broker   broker.Client
	backend  backend.Store
	verifier auth.TokenVerifier
	auth0    *auth.Auth0Client
	deferrer Deferrer
}

// New builds the API. verifier may be nil when auth is not configured
// (local development); compute routes are then left unguarded.
func New(
	cfg *config.Config,
	brokerClient broker.Client,
	store backend.Store,
	verifier auth.TokenVerifier,
	auth0 *auth.Auth0Client,
	deferrer Deferrer,
) *API {
	return &API{
		cfg:      cfg,
		broker:   brokerClient,
		backend:  store,
		verifier: verifier,
		auth0:    auth0,
		deferrer: deferrer,
	}
}

// ConfigureRoutes mounts the API under the configured prefixes.
func (a *API) ConfigureRoutes(r chi.Router) {
	r.Route(a.cfg.APIComputePrefix, func(r chi.Router) {
		if a.verifier != nil {
			r.Use(auth.Middleware(a.verifier, auth.ScopeCompute))
		}
		r.Post("/", a.handleSubmit)
		r.Get("/output/{taskID}", a.handleResult)
	})

	if a.auth0 != nil {
		r.Route(a.cfg.APIOAuthPrefix, func(r chi.Router) {
			r.Post("/token", a.handleToken)
			r.Get("/auth0/callback", a.handleAuth0Callback)
		})
	}
}
