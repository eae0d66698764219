// Package http provides HTTP server and handler implementations.
//
// This file builds post/redirect/get responses. Flash messages ride along
// in the caller's session and are shown by the next page render.
package http

import (
	"net/http"

	"mcdry/internal/auth"
)

// FlashStore queues one-shot messages for a session token.
type FlashStore interface {
	AddFlash(token string, f auth.Flash)
}

// RedirectBuilder provides a fluent API for redirect responses.
type RedirectBuilder struct {
	target  string
	status  int
	flashes []auth.Flash
}

// Redirect starts a 303 See Other response to target.
func Redirect(target string) *RedirectBuilder {
	if target == "" {
		target = "/"
	}
	return &RedirectBuilder{target: target, status: http.StatusSeeOther}
}

// Status overrides the redirect status code.
func (b *RedirectBuilder) Status(code int) *RedirectBuilder {
	b.status = code
	return b
}

// Flash queues a message of the given level.
func (b *RedirectBuilder) Flash(level auth.FlashLevel, message string) *RedirectBuilder {
	b.flashes = append(b.flashes, auth.Flash{Level: level, Message: message})
	return b
}

func (b *RedirectBuilder) Success(message string) *RedirectBuilder {
	return b.Flash(auth.FlashSuccess, message)
}

func (b *RedirectBuilder) Warning(message string) *RedirectBuilder {
	return b.Flash(auth.FlashWarning, message)
}

func (b *RedirectBuilder) Error(message string) *RedirectBuilder {
	return b.Flash(auth.FlashError, message)
}

// Target returns where the response will redirect.
func (b *RedirectBuilder) Target() string {
	return b.target
}

// Write stores the flashes in the request's session, if any, and sends the
// redirect. Flashes for anonymous requests are dropped.
func (b *RedirectBuilder) Write(w http.ResponseWriter, r *http.Request, store FlashStore) {
	if sess, ok := sessionFrom(r.Context()); ok && store != nil {
		for _, f := range b.flashes {
			store.AddFlash(sess.Token, f)
		}
	}
	http.Redirect(w, r, b.target, b.status)
}
