// Package errs defines the user-visible error taxonomy of the bot.
// Every failure of an authenticated main-service call is reduced to one
// of these kinds and answered with canned reply text; nothing here is
// fatal to the process.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindNotAuthenticated Kind = iota
	KindLoginExpired
	KindLoginPending
	KindAccessDenied
	KindNotFound
	KindTransient
)

type BotError struct {
	Kind  Kind
	Reply string // text sent to the chat
	HTTP  int    // backend status when relevant, 0 otherwise
}

func (e *BotError) Error() string {
	if e.HTTP != 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Reply, e.HTTP)
	}
	return e.Reply
}

var (
	ErrNotAuthenticated = &BotError{Kind: KindNotAuthenticated, Reply: "You are not authorized. Use: /login github|yandex|code"}
	ErrLoginExpired     = &BotError{Kind: KindLoginExpired, Reply: "⏳ Login not completed or expired. Start again: /login github|yandex|code"}
	ErrLoginPending     = &BotError{Kind: KindLoginPending, Reply: "⏳ Login is not finished yet. Complete it and try again."}
	ErrAccessDenied     = &BotError{Kind: KindAccessDenied, Reply: "You do not have permission for this action."}
)

// NotFound builds a domain-specific not-found error ("Course not found." etc).
func NotFound(what string) *BotError {
	return &BotError{Kind: KindNotFound, Reply: what + " not found.", HTTP: 404}
}

// Transient wraps a failed operation with the backend status code.
func Transient(op string, status int) *BotError {
	return &BotError{Kind: KindTransient, Reply: fmt.Sprintf("%s failed (HTTP %d)", op, status), HTTP: status}
}

// AsBotError extracts a *BotError from a wrapped chain, if any.
func AsBotError(err error) (*BotError, bool) {
	var be *BotError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
