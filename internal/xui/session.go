package xui

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"vpnbot/internal/cache"
)

// SessionCache holds the panel session cookie keyed by host+username so
// concurrent requests share one login. Entries carry their own creation
// stamp: freshness is decided here, not by the backing store, so the TTL
// holds even when the store keeps values longer (e.g. a warm Redis).
type SessionCache struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionCache(store cache.Store, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

func sessionKey(host, username string) string {
	sum := md5.Sum([]byte(host + username))
	return "xui:session:" + hex.EncodeToString(sum[:])
}

// Get returns the cached cookie for host+username if it is younger than
// the TTL.
func (s *SessionCache) Get(ctx context.Context, host, username string) (string, bool) {
	val, ok := s.store.Get(ctx, sessionKey(host, username))
	if !ok {
		return "", false
	}
	storedAt, token, ok := splitSessionValue(val)
	if !ok {
		return "", false
	}
	if s.now().Sub(storedAt) >= s.ttl {
		return "", false
	}
	return token, true
}

// Put stores the cookie stamped with the current time, overwriting any
// previous session.
func (s *SessionCache) Put(ctx context.Context, host, username, token string) {
	val := strconv.FormatInt(s.now().Unix(), 10) + "|" + token
	s.store.Set(ctx, sessionKey(host, username), val, s.ttl)
}

// Invalidate drops the cached cookie. Called after the panel rejects a
// session so the next request re-authenticates.
func (s *SessionCache) Invalidate(ctx context.Context, host, username string) {
	s.store.Delete(ctx, sessionKey(host, username))
}

func splitSessionValue(val string) (time.Time, string, bool) {
	sep := strings.IndexByte(val, '|')
	if sep <= 0 {
		return time.Time{}, "", false
	}
	unix, err := strconv.ParseInt(val[:sep], 10, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	return time.Unix(unix, 0), val[sep+1:], true
}
