package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/planhub/messaging/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// CallerIdentity returns the verified identity the auth middleware stored
// on the request context.
func CallerIdentity(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

func withIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// bearerToken extracts the caller's token. Browsers cannot set headers on
// websocket handshakes, so the token query parameter is accepted as a
// fallback.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}

	return r.URL.Query().Get("token")
}

func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requireRole restricts a handler to callers holding one of the given
// roles. The task-subsystem endpoints use it so an ordinary user token
// cannot mint notifications for other users.
func (s *App) requireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CallerIdentity(r.Context())
		if !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		if !slices.Contains(roles, identity.Role) {
			s.writeError(w, NewForbiddenError("insufficient role"))
			return
		}

		next(w, r)
	}
}

func (s *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			s.log.Printf("token verification failed: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := withIdentity(r.Context(), identity)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
