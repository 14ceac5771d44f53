package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"TGModule/logger"
)

// DefaultSessionTTL is refreshed on every save; a chat idle for this
// long loses its session and falls back to UNKNOWN.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore persists sessions keyed by chat id and maintains the two
// secondary indexes (anon, auth) the background sweeps traverse.
//
// Keys: <prefix>:session:<chatId>, <prefix>:anon, <prefix>:auth.
type SessionStore struct {
	rdb    *redis.Client
	prefix string
}

func NewSessionStore(rdb *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "tg"
	}
	return &SessionStore{rdb: rdb, prefix: prefix}
}

func (st *SessionStore) sessionKey(chatID int64) string {
	return st.prefix + ":session:" + strconv.FormatInt(chatID, 10)
}

func (st *SessionStore) anonKey() string { return st.prefix + ":anon" }
func (st *SessionStore) authKey() string { return st.prefix + ":auth" }

// Load returns the chat's session. A missing key and malformed stored
// data both yield the zero-value UNKNOWN session; storage trouble is
// never propagated to command handling.
func (st *SessionStore) Load(ctx context.Context, chatID int64) Session {
	raw, err := st.rdb.Get(ctx, st.sessionKey(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return NewSession()
	}
	if err != nil {
		logger.Warn("session load failed", zap.Int64("chat", chatID), zap.Error(err))
		return NewSession()
	}
	s, err := unmarshalSession([]byte(raw))
	if err != nil {
		logger.Warn("malformed stored session, treating as UNKNOWN",
			zap.Int64("chat", chatID), zap.Error(err))
		return NewSession()
	}
	return s
}

// Save serializes the session and refreshes its TTL. The caller is
// responsible for having updated Status consistently; the store does
// not enforce the state-machine invariants.
func (st *SessionStore) Save(ctx context.Context, chatID int64, s Session) error {
	raw, err := marshalSession(s)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := st.rdb.Set(ctx, st.sessionKey(chatID), raw, DefaultSessionTTL).Err(); err != nil {
		return errors.Wrapf(err, "save session %d", chatID)
	}
	return nil
}

// Clear deletes the session and removes the chat from both indexes.
func (st *SessionStore) Clear(ctx context.Context, chatID int64) {
	member := strconv.FormatInt(chatID, 10)
	if err := st.rdb.Del(ctx, st.sessionKey(chatID)).Err(); err != nil {
		logger.Warn("session delete failed", zap.Int64("chat", chatID), zap.Error(err))
	}
	st.rdb.SRem(ctx, st.authKey(), member)
	st.rdb.SRem(ctx, st.anonKey(), member)
}

// MarkAnon adds the chat to the anon index and removes it from auth.
// Idempotent; a saved session is a member of at most one index.
func (st *SessionStore) MarkAnon(ctx context.Context, chatID int64) {
	member := strconv.FormatInt(chatID, 10)
	st.rdb.SAdd(ctx, st.anonKey(), member)
	st.rdb.SRem(ctx, st.authKey(), member)
}

// MarkAuth adds the chat to the auth index and removes it from anon.
func (st *SessionStore) MarkAuth(ctx context.Context, chatID int64) {
	member := strconv.FormatInt(chatID, 10)
	st.rdb.SAdd(ctx, st.authKey(), member)
	st.rdb.SRem(ctx, st.anonKey(), member)
}

// AnonChats enumerates chats currently waiting for login completion.
// Non-numeric members are skipped.
func (st *SessionStore) AnonChats(ctx context.Context) []int64 {
	return st.members(ctx, st.anonKey())
}

// AuthChats enumerates authenticated chats.
func (st *SessionStore) AuthChats(ctx context.Context) []int64 {
	return st.members(ctx, st.authKey())
}

func (st *SessionStore) members(ctx context.Context, key string) []int64 {
	raw, err := st.rdb.SMembers(ctx, key).Result()
	if err != nil {
		logger.Warn("index read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, m := range raw {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// IndexSizes reports the cardinality of both indexes (ops endpoint).
func (st *SessionStore) IndexSizes(ctx context.Context) (anon, auth int64) {
	anon, _ = st.rdb.SCard(ctx, st.anonKey()).Result()
	auth, _ = st.rdb.SCard(ctx, st.authKey()).Result()
	return anon, auth
}

// Ping verifies the store is reachable.
func (st *SessionStore) Ping(ctx context.Context) error {
	return st.rdb.Ping(ctx).Err()
}
