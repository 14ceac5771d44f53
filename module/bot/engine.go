// Package bot holds the session lifecycle engine, the command
// dispatcher and the two background sweeps. State per chat moves
// UNKNOWN -> ANON (login started) -> AUTH (completion detected), and
// back to UNKNOWN on logout, expiry or a dead login nonce.
package bot

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"TGModule/logger"
	"TGModule/service/auth"
	"TGModule/service/mainapi"
	"TGModule/service/storage"
	"TGModule/tools/errs"
	"TGModule/tools/ids"
	"TGModule/tools/security"
)

type Options struct {
	// SuccessMarker is the localized status string the auth service
	// returns for a completed login; see AUTH_SUCCESS_MARKER.
	SuccessMarker string
	// NotifyInterval is the notification sweep period (floored to 5s
	// by config).
	NotifyInterval time.Duration
}

type Bot struct {
	store *storage.SessionStore
	auth  *auth.Client
	api   *mainapi.Client
	send  Sender
	opts  Options
}

func New(store *storage.SessionStore, authc *auth.Client, api *mainapi.Client, send Sender, opts Options) *Bot {
	if opts.NotifyInterval < 5*time.Second {
		opts.NotifyInterval = 30 * time.Second
	}
	return &Bot{store: store, auth: authc, api: api, send: send, opts: opts}
}

// granted reports whether a check result means the login completed:
// HTTP 200, the service's success marker, and both tokens present.
func (b *Bot) granted(cr auth.CheckResult) bool {
	return cr.HTTP == http.StatusOK &&
		cr.Status == b.opts.SuccessMarker &&
		cr.Access != "" && cr.Refresh != ""
}

// promote moves the session to AUTH in place and persists it. Both the
// interactive gate and the reconciliation sweep run this; the race
// between them is benign because both write the same observed tokens
// and the index updates are idempotent.
func (b *Bot) promote(ctx context.Context, chatID int64, s *storage.Session, cr auth.CheckResult) {
	s.Status = storage.StatusAuth
	s.AccessToken = cr.Access
	s.RefreshToken = cr.Refresh
	s.TokenIn = ""

	if err := b.store.Save(ctx, chatID, *s); err != nil {
		logger.Warn("save on promote failed", zap.Int64("chat", chatID), zap.Error(err))
	}
	b.store.MarkAuth(ctx, chatID)

	if exp, ok := security.TokenExpiry(s.AccessToken); ok {
		logger.Info("chat authenticated",
			zap.Int64("chat", chatID), zap.Time("access_expires", exp))
	} else {
		logger.Info("chat authenticated", zap.Int64("chat", chatID))
	}
}

// EnsureAuth is the gate in front of every authenticated command.
// AUTH sessions pass. ANON sessions are polled once against the auth
// service: completion promotes and passes, a dead nonce clears the
// session, anything else leaves state untouched. UNKNOWN sessions are
// told to /login.
func (b *Bot) EnsureAuth(ctx context.Context, chatID int64, s *storage.Session) bool {
	if s.IsAuth() {
		return true
	}

	if s.Status == storage.StatusAnon && s.TokenIn != "" {
		cr := b.auth.Check(ctx, s.TokenIn)

		if b.granted(cr) {
			b.promote(ctx, chatID, s, cr)
			b.send.Send(chatID, "✅ Authorization complete. You can use the bot now. /courses")
			return true
		}

		if cr.HTTP == http.StatusUnauthorized || cr.HTTP == http.StatusNotFound {
			b.store.Clear(ctx, chatID)
			*s = storage.NewSession()
			b.send.Send(chatID, errs.ErrLoginExpired.Reply)
			return false
		}

		b.send.Send(chatID, errs.ErrLoginPending.Reply)
		return false
	}

	b.send.Send(chatID, errs.ErrNotAuthenticated.Reply)
	return false
}

// refreshIfNeeded exchanges the refresh token for a new pair after a
// main-service 401. On success both tokens are replaced in place and
// the caller retries the original call at most once. The session is
// not cleared on failure; the refresh token may only be temporarily
// rejected.
func (b *Bot) refreshIfNeeded(ctx context.Context, s *storage.Session) bool {
	if s.RefreshToken == "" {
		return false
	}
	access, refresh, ok := b.auth.Refresh(ctx, s.RefreshToken)
	if !ok {
		return false
	}
	s.AccessToken = access
	s.RefreshToken = refresh
	if exp, ok := security.TokenExpiry(access); ok {
		logger.Debug("access token refreshed", zap.Time("expires", exp))
	}
	return true
}

// callAuthed runs one authenticated main-service call with the
// mandatory 401-then-refresh-then-retry-once pattern. The main service
// is called at most twice per logical operation.
func (b *Bot) callAuthed(ctx context.Context, chatID int64, s *storage.Session, call func(bearer string) mainapi.Response) mainapi.Response {
	r := call(s.AccessToken)
	if r.Status == http.StatusUnauthorized && b.refreshIfNeeded(ctx, s) {
		if err := b.store.Save(ctx, chatID, *s); err != nil {
			logger.Warn("save after refresh failed", zap.Int64("chat", chatID), zap.Error(err))
		}
		r = call(s.AccessToken)
	}
	return r
}

// startLogin handles /login <github|yandex|code>. The fresh ANON
// session is saved and indexed before the start-login call so a slow
// auth service cannot hide the chat from the reconciliation sweep.
func (b *Bot) startLogin(ctx context.Context, chatID int64, typ string) {
	switch typ {
	case "github", "yandex", "code":
	default:
		b.send.Send(chatID, "Unknown type. Use: github | yandex | code")
		return
	}

	s := storage.NewSession()
	s.Status = storage.StatusAnon
	s.LoginType = typ
	s.TokenIn = ids.LoginToken()

	if err := b.store.Save(ctx, chatID, s); err != nil {
		logger.Warn("save on login failed", zap.Int64("chat", chatID), zap.Error(err))
		b.send.Send(chatID, "Could not start login, try again later.")
		return
	}
	b.store.MarkAnon(ctx, chatID)

	res := b.auth.StartLogin(ctx, typ, s.TokenIn)
	switch res.Kind {
	case auth.LoginStartURL:
		b.send.Send(chatID, "Open this link to sign in:\n"+res.Value)
		b.send.Send(chatID, "After signing in the bot picks the session up on its own (or send /courses).\n"+
			"If nothing happens: retry /courses in a couple of seconds.")
	case auth.LoginStartCode:
		b.send.Send(chatID, "Your login code: "+res.Value)
		b.send.Send(chatID, "Finish the authorization; the bot picks the session up on its own.")
	default:
		b.store.Clear(ctx, chatID)
		b.send.Send(chatID, "Could not start login: "+res.Err)
	}
}

// logout revokes the refresh token (best-effort) and destroys local
// state. "all=true" in the payload revokes every session of the user.
func (b *Bot) logout(ctx context.Context, chatID int64, payload string) {
	all := containsAllFlag(payload)
	s := b.store.Load(ctx, chatID)
	if s.RefreshToken != "" {
		b.auth.Logout(ctx, s.RefreshToken, all)
	}
	b.store.Clear(ctx, chatID)
	b.send.Send(chatID, "✅ Logged out")
}
