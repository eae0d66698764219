package http

import (
	"fmt"
	"net/http"

	"mcdry/internal/auth"
	"mcdry/internal/log"
)

type loginData struct {
	Username string
	Error    string
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", "Sign in", loginData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", "Sign in", loginData{Error: "Invalid form submission."})
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	clientIP := s.detector.ExtractClientIP(r)

	role, err := s.authn.Authenticate(username, password)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Login failed",
			log.FieldUsername, username,
			log.FieldClientIP, clientIP)
		s.render(w, r, http.StatusUnauthorized, "login.html", "Sign in", loginData{
			Username: username,
			Error:    "Access denied. Check your username and password.",
		})
		return
	}

	// Replace any session the browser already had.
	if old, ok := sessionFrom(r.Context()); ok {
		s.sessions.Delete(old.Token)
	}
	sess := s.sessions.Create(username, role)
	s.setSessionCookie(w, sess)
	s.loginLimiter.Reset(clientIP)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Login succeeded",
		log.FieldUsername, username,
		log.FieldRole, role.String(),
		log.FieldClientIP, clientIP)
	s.sessions.AddFlash(sess.Token, auth.Flash{
		Level:   auth.FlashSuccess,
		Message: fmt.Sprintf("Signed in as %s (%s).", username, role),
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLoginThrottled(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusTooManyRequests, "login.html", "Sign in", loginData{
		Error: "Too many sign-in attempts. Wait a minute and try again.",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := sessionFrom(r.Context()); ok {
		s.sessions.Delete(sess.Token)
		log.FromContext(r.Context()).InfoContext(r.Context(), "Logout", log.FieldUsername, sess.Username)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
