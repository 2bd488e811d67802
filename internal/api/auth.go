// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/mediafetch/internal/auth"
	"github.com/ManuGH/mediafetch/internal/log"
)

// authMiddleware enforces the API token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.currentToken()
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "auth")
		got := auth.ExtractToken(r)
		if got == "" {
			logger.Warn().Str(log.FieldEvent, "auth.missing_header").Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}
		if !auth.AuthorizeToken(got, token) {
			logger.Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
