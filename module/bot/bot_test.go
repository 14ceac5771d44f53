package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"TGModule/service/auth"
	"TGModule/service/mainapi"
	"TGModule/service/storage"
)

// testMarker is the configured auth-service success marker in tests.
const testMarker = "granted"

type sentMsg struct {
	chat    int64
	text    string
	buttons []Button
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMsg
}

func (f *fakeSender) Send(chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMsg{chat: chatID, text: text})
}

func (f *fakeSender) SendKeyboard(chatID int64, text string, buttons []Button) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMsg{chat: chatID, text: text, buttons: buttons})
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.text)
	}
	return out
}

func (f *fakeSender) last() sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return sentMsg{}
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

type testEnv struct {
	bot   *Bot
	send  *fakeSender
	store *storage.SessionStore
	mr    *miniredis.Miniredis
}

// newTestEnv wires a Bot against miniredis and two httptest backends.
// Nil handlers install a server that always answers 500.
func newTestEnv(t *testing.T, authH, mainH http.Handler) *testEnv {
	t.Helper()

	if authH == nil {
		authH = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
	}
	if mainH == nil {
		mainH = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := storage.NewSessionStore(rdb, "tg")

	authSrv := httptest.NewServer(authH)
	t.Cleanup(authSrv.Close)
	mainSrv := httptest.NewServer(mainH)
	t.Cleanup(mainSrv.Close)

	send := &fakeSender{}
	b := New(store, auth.NewClient(authSrv.URL), mainapi.NewClient(mainSrv.URL), send, Options{
		SuccessMarker:  testMarker,
		NotifyInterval: 30 * time.Second,
	})
	return &testEnv{bot: b, send: send, store: store, mr: mr}
}

func (e *testEnv) seedAnon(t *testing.T, chatID int64, tokenIn string) {
	t.Helper()
	s := storage.NewSession()
	s.Status = storage.StatusAnon
	s.LoginType = "github"
	s.TokenIn = tokenIn
	require.NoError(t, e.store.Save(context.Background(), chatID, s))
	e.store.MarkAnon(context.Background(), chatID)
}

func (e *testEnv) seedAuth(t *testing.T, chatID int64) {
	t.Helper()
	s := storage.NewSession()
	s.Status = storage.StatusAuth
	s.AccessToken = "acc"
	s.RefreshToken = "ref"
	require.NoError(t, e.store.Save(context.Background(), chatID, s))
	e.store.MarkAuth(context.Background(), chatID)
}

// grantHandler answers /auth/check with a completed login.
func grantHandler(access, refresh string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/check" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"` + testMarker + `","access_token":"` + access + `","refresh_token":"` + refresh + `"}`))
	})
}

// statusHandler answers /auth/check with a bare status code.
func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

// refreshHandler answers /auth/refresh with a fresh pair.
func refreshHandler(access, refresh string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"` + access + `","refresh_token":"` + refresh + `"}`))
	})
}
