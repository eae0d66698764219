package http

import (
	"context"
	"errors"
	"net/http"

	"mcdry/internal/auth"
	"mcdry/internal/log"
)

const sessionCookieName = "mcdry_session"

type sessionKey struct{}

func sessionFrom(ctx context.Context) (auth.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(auth.Session)
	return sess, ok
}

// withSession resolves the session cookie. Requests without a live session
// carry no session and are anonymous.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, ok := s.sessions.Get(c.Value)
		if !ok {
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		logger := log.FromContext(ctx).With(log.FieldUsername, sess.Username, log.FieldRole, sess.Role.String())
		ctx = context.WithValue(ctx, log.LoggerContextKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireAction is the single authorization gate for routes.
func (s *Server) requireAction(action auth.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authorize(w, r, action) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authorize checks the policy for the request's role. On refusal it writes
// the response and returns false: anonymous callers go to the login page,
// everyone else back where they came from with a flash.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, action auth.Action) bool {
	sess, _ := sessionFrom(r.Context())
	err := s.policy.Authorize(sess.Role, action)
	if err == nil {
		return true
	}

	if errors.Is(err, auth.ErrUnauthenticated) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return false
	}

	s.structured.LogAccessDenied(r.Context(), r, sess.Username, sess.Role.String(), string(action))
	Redirect(backTo(r)).Error("Permission denied.").Write(w, r, s.sessions)
	return false
}
