package middleware

import (
	"net/http"

	"pdfdocx-be/internal/auth"
	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionMiddleware binds every request to a browser session. A signed
// cookie carries the session id; a fresh one is issued when it is missing,
// expired or tampered with.
func SessionMiddleware(signer *auth.SessionSigner, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			issued := false

			if tokenStr := auth.ExtractSessionToken(r); tokenStr != "" {
				claims, err := signer.Parse(tokenStr)
				if err == nil {
					sessionID = claims.SessionID
				} else {
					logger.FromCtx(r.Context()).Debug("Discarding session token", zap.Error(err))
				}
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
				token, err := signer.Issue(sessionID)
				if err != nil {
					logger.FromCtx(r.Context()).Error("Failed to issue session token", zap.Error(err))
					utils.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
					return
				}

				issued = true
				http.SetCookie(w, &http.Cookie{
					Name:     auth.SessionCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(signer.TTL().Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := utils.SetSessionContext(r.Context(), sessionID)
			ctx = logger.WithSessionID(ctx, sessionID)
			if issued {
				ctx = utils.MarkSessionIssued(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
