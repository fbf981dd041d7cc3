package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/services"
	"github.com/rs/zerolog/log"
)

type Server struct {
	httpServer *http.Server
}

func New(cfg *config.ServerConfig, service *services.Service) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      NewRouter(NewHandlers(service), cfg.MaxBodyBytes, cfg.NonceWindow),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("starting api server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
