package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adfyer/apiserver/internal/auth"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type contextKey string

const contextClaimsKey contextKey = "claims"

func withClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

// ClaimsFromContext returns the session claims injected by RequireAuth.
func ClaimsFromContext(ctx context.Context) (auth.Claims, error) {
	claims, ok := ctx.Value(contextClaimsKey).(auth.Claims)
	if !ok || claims.AccountID == "" {
		return auth.Claims{}, errors.New("missing claims")
	}
	return claims, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Msg: message})
}
