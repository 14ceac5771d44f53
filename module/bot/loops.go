package bot

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"TGModule/logger"
	"TGModule/service/mainapi"
	"TGModule/service/storage"
	"TGModule/tools/safe"
)

// reconcileInterval is the auth reconciliation sweep period.
const reconcileInterval = 3 * time.Second

// brokenSweepLimit is the number of consecutive all-transport-error
// sweeps after which the reconciler backs off to 10x the period. Keeps
// a downed auth service from being polled every 3 seconds for every
// waiting chat.
const brokenSweepLimit = 3

// StartLoops launches the reconciliation and notification sweeps. They
// run until ctx is cancelled (process lifetime in production; tests
// cancel them).
func (b *Bot) StartLoops(ctx context.Context) {
	safe.Go("auth-reconcile", func() { b.runReconciliation(ctx) })
	safe.Go("notifications", func() { b.runNotifications(ctx) })
}

func (b *Bot) runReconciliation(ctx context.Context) {
	brokenStreak := 0
	for {
		interval := reconcileInterval
		if brokenStreak >= brokenSweepLimit {
			interval = 10 * reconcileInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		checked, transportErrs := b.reconcileOnce(ctx)
		if checked > 0 && transportErrs == checked {
			brokenStreak++
			if brokenStreak == brokenSweepLimit {
				logger.Warn("auth service unreachable, backing off reconciliation",
					zap.Int("waiting_chats", checked))
			}
		} else {
			brokenStreak = 0
		}
	}
}

// reconcileOnce sweeps the anon index once, completing authentications
// detected at the auth service. Returns how many chats were polled and
// how many of those polls failed at the transport level.
func (b *Bot) reconcileOnce(ctx context.Context) (checked, transportErrs int) {
	for _, chatID := range b.store.AnonChats(ctx) {
		s := b.store.Load(ctx, chatID)
		if s.Status != storage.StatusAnon || s.TokenIn == "" {
			// stale index entry; re-assert membership only while the
			// session really is ANON
			if s.Status == storage.StatusAnon {
				b.store.MarkAnon(ctx, chatID)
			}
			continue
		}

		checked++
		cr := b.auth.Check(ctx, s.TokenIn)
		switch {
		case b.granted(cr):
			b.promote(ctx, chatID, &s, cr)
			b.send.Send(chatID, "✅ Authorization complete. /courses")
		case cr.HTTP == http.StatusUnauthorized || cr.HTTP == http.StatusNotFound:
			b.store.Clear(ctx, chatID)
			b.send.Send(chatID, "⏳ Authorization expired. Start again: /login github|yandex|code")
		case cr.HTTP == 0:
			transportErrs++
		}
		// any other outcome: not yet, leave the session untouched
	}
	return checked, transportErrs
}

func (b *Bot) runNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.opts.NotifyInterval):
		}
		b.notifyOnce(ctx)
	}
}

// notifyOnce sweeps the auth index once, delivering pending
// notifications. The backend removes delivered notifications on
// DELETE, which is only issued after at least one message went out:
// delivery is at-least-once — if the DELETE fails after a successful
// send, the same batch shows up again next sweep.
func (b *Bot) notifyOnce(ctx context.Context) (sent int) {
	for _, chatID := range b.store.AuthChats(ctx) {
		s := b.store.Load(ctx, chatID)
		if s.Status != storage.StatusAuth || s.AccessToken == "" {
			continue
		}

		r := b.callAuthed(ctx, chatID, &s, func(bearer string) mainapi.Response {
			return b.api.Get(ctx, "/notification", bearer)
		})
		if r.Status != http.StatusOK {
			continue
		}

		var notes []struct {
			Message string `json:"message"`
		}
		if err := r.JSON(&notes); err != nil || len(notes) == 0 {
			continue
		}

		delivered := 0
		for _, n := range notes {
			if n.Message == "" {
				continue
			}
			b.send.Send(chatID, "🔔 "+n.Message)
			delivered++
		}
		if delivered == 0 {
			continue
		}
		sent += delivered

		d := b.callAuthed(ctx, chatID, &s, func(bearer string) mainapi.Response {
			return b.api.Delete(ctx, "/notification", bearer)
		})
		if !d.OK() {
			logger.Warn("notification ack failed, batch will be re-delivered",
				zap.Int64("chat", chatID), zap.Int("status", d.Status))
		}
	}
	return sent
}
