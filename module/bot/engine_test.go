package bot

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TGModule/service/storage"
	"TGModule/tools/errs"
	"TGModule/tools/ids"
)

func TestEnsureAuthPassesAuthenticatedSession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seedAuth(t, 1)

	s := env.store.Load(context.Background(), 1)
	assert.True(t, env.bot.EnsureAuth(context.Background(), 1, &s))
	assert.Empty(t, env.send.texts())
}

func TestEnsureAuthPromotesCompletedLogin(t *testing.T) {
	env := newTestEnv(t, grantHandler("acc", "ref"), nil)
	env.seedAnon(t, 1, "nonce")
	ctx := context.Background()

	s := env.store.Load(ctx, 1)
	require.True(t, env.bot.EnsureAuth(ctx, 1, &s))

	// the in-memory session and the persisted one both moved to AUTH
	assert.Equal(t, storage.StatusAuth, s.Status)
	assert.Empty(t, s.TokenIn)

	got := env.store.Load(ctx, 1)
	assert.Equal(t, storage.StatusAuth, got.Status)
	assert.Equal(t, "acc", got.AccessToken)
	assert.Equal(t, "ref", got.RefreshToken)

	assert.Empty(t, env.store.AnonChats(ctx))
	assert.Equal(t, []int64{1}, env.store.AuthChats(ctx))
	assert.Contains(t, env.send.texts(), "✅ Authorization complete. You can use the bot now. /courses")
}

func TestEnsureAuthDeadNonceClears(t *testing.T) {
	env := newTestEnv(t, statusHandler(http.StatusNotFound), nil)
	env.seedAnon(t, 1, "nonce")
	ctx := context.Background()

	s := env.store.Load(ctx, 1)
	assert.False(t, env.bot.EnsureAuth(ctx, 1, &s))

	assert.Equal(t, storage.NewSession(), s)
	assert.Equal(t, storage.NewSession(), env.store.Load(ctx, 1))
	assert.Empty(t, env.store.AnonChats(ctx))
	assert.Contains(t, env.send.texts(), errs.ErrLoginExpired.Reply)
}

func TestEnsureAuthPendingLeavesSessionUntouched(t *testing.T) {
	env := newTestEnv(t, statusHandler(http.StatusInternalServerError), nil)
	env.seedAnon(t, 1, "nonce")
	ctx := context.Background()

	s := env.store.Load(ctx, 1)
	assert.False(t, env.bot.EnsureAuth(ctx, 1, &s))

	got := env.store.Load(ctx, 1)
	assert.Equal(t, storage.StatusAnon, got.Status)
	assert.Equal(t, "nonce", got.TokenIn)
	assert.Contains(t, env.send.texts(), errs.ErrLoginPending.Reply)
}

func TestEnsureAuthRejectsUnknown(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	s := storage.NewSession()
	assert.False(t, env.bot.EnsureAuth(context.Background(), 1, &s))
	assert.Contains(t, env.send.texts(), errs.ErrNotAuthenticated.Reply)
}

func TestStartLoginPersistsSessionBeforeAuthCall(t *testing.T) {
	// the handler observes the store at the moment the auth service is
	// hit: the chat must already be saved and in the anon index
	var env *testEnv
	var indexedAtCall atomic.Bool
	authH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for _, id := range env.store.AnonChats(context.Background()) {
			if id == 7 {
				indexedAtCall.Store(true)
			}
		}
		_, _ = w.Write([]byte(`{"url":"https://idp.example/login"}`))
	})
	env = newTestEnv(t, authH, nil)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 7, "/login github")

	assert.True(t, indexedAtCall.Load())
	s := env.store.Load(ctx, 7)
	assert.Equal(t, storage.StatusAnon, s.Status)
	assert.Equal(t, "github", s.LoginType)
	assert.Len(t, s.TokenIn, ids.LoginTokenLen)

	texts := env.send.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "https://idp.example/login")
}

func TestStartLoginCodeFlow(t *testing.T) {
	authH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"X9K2"}`))
	})
	env := newTestEnv(t, authH, nil)

	env.bot.HandleCommand(context.Background(), 7, "/login code")

	texts := env.send.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "X9K2")
}

func TestStartLoginUnknownType(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 7, "/login vk")

	assert.Contains(t, env.send.texts(), "Unknown type. Use: github | yandex | code")
	assert.Equal(t, storage.NewSession(), env.store.Load(ctx, 7))
}

func TestStartLoginBackendErrorClears(t *testing.T) {
	env := newTestEnv(t, statusHandler(http.StatusBadGateway), nil)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 7, "/login github")

	assert.Equal(t, storage.NewSession(), env.store.Load(ctx, 7))
	assert.Empty(t, env.store.AnonChats(ctx))
	require.NotEmpty(t, env.send.texts())
	assert.Contains(t, env.send.last().text, "Could not start login")
}

func TestLogoutRevokesAndClears(t *testing.T) {
	var gotAll, gotRefresh string
	authH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/logout" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotRefresh = r.URL.Query().Get("refresh_token")
		gotAll = r.URL.Query().Get("all")
	})
	env := newTestEnv(t, authH, nil)
	env.seedAuth(t, 3)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 3, "/logout all=true")

	assert.Equal(t, "ref", gotRefresh)
	assert.Equal(t, "true", gotAll)
	assert.Equal(t, storage.NewSession(), env.store.Load(ctx, 3))
	assert.Empty(t, env.store.AuthChats(ctx))
	assert.Contains(t, env.send.texts(), "✅ Logged out")
}

func TestCallAuthedRefreshesOnceAfter401(t *testing.T) {
	var mainCalls atomic.Int32
	mainH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mainCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer new-acc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})
	env := newTestEnv(t, refreshHandler("new-acc", "new-ref"), mainH)
	env.seedAuth(t, 5)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 5, "/courses")

	assert.EqualValues(t, 2, mainCalls.Load())
	assert.Contains(t, env.send.texts(), "No courses yet.")

	// the refreshed pair was persisted
	got := env.store.Load(ctx, 5)
	assert.Equal(t, "new-acc", got.AccessToken)
	assert.Equal(t, "new-ref", got.RefreshToken)
}

func TestCallAuthedRetriesAtMostOnce(t *testing.T) {
	var mainCalls atomic.Int32
	mainH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mainCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	env := newTestEnv(t, refreshHandler("new-acc", "new-ref"), mainH)
	env.seedAuth(t, 5)

	env.bot.HandleCommand(context.Background(), 5, "/courses")

	assert.EqualValues(t, 2, mainCalls.Load())
	assert.Contains(t, env.send.texts(), "Fetching courses failed (HTTP 401)")
}

func TestCallAuthedNoRetryWhenRefreshFails(t *testing.T) {
	var mainCalls atomic.Int32
	mainH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mainCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	env := newTestEnv(t, statusHandler(http.StatusUnauthorized), mainH)
	env.seedAuth(t, 5)
	ctx := context.Background()

	env.bot.HandleCommand(ctx, 5, "/courses")

	assert.EqualValues(t, 1, mainCalls.Load())
	// session is kept; the refresh token may only be temporarily rejected
	got := env.store.Load(ctx, 5)
	assert.Equal(t, storage.StatusAuth, got.Status)
}
