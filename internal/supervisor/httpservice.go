// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zipalim/zipalim/internal/logging"
)

// HTTPServer is the part of *http.Server the service wrapper needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server to suture's Service interface. When the
// supervisor cancels the service context the server is drained gracefully
// within ShutdownTimeout.
type HTTPService struct {
	name            string
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server for supervision. name appears in supervisor
// logs.
func NewHTTPService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

// Serve runs the server until it fails or ctx is canceled.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Str("service", s.name).Msg("http server failed")
		}
		return err
	case <-ctx.Done():
	}

	// Shutdown needs its own context; ctx is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("http server shutdown")
	}
	<-errCh
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string {
	return s.name
}
