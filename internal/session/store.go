package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/kvstore"
)

const (
	keyPrefix = "session:"
	indexKey  = "sessions:index"

	// DefaultTTL is the draft lifetime; every mutating operation
	// refreshes it.
	DefaultTTL = 24 * time.Hour
)

// Store persists sessions as JSON values in the key-value store and
// maintains a recency-sorted index. Writes are whole-value replacements;
// concurrent mutations of the same session race at the store level
// (last write wins).
type Store struct {
	kv  kvstore.Store
	ttl time.Duration
}

func NewStore(kv kvstore.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

func sessionKey(id string) string { return keyPrefix + id }

// Load fetches a session. A missing or expired key reports not-found;
// callers must tolerate sessions disappearing between reads.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
			return nil, errs.NotFound("session %s not found", id)
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the session back, refreshing its TTL and bumping the
// recency index.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.ID), string(data), s.ttl); err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, indexKey, float64(sess.UpdatedAt.UnixMilli()), sess.ID)
}

// Delete removes the session and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Del(ctx, sessionKey(id)); err != nil {
		return err
	}
	return s.kv.ZRem(ctx, indexKey, id)
}

// List returns sessions ordered most recently updated first. Index
// entries whose session has expired are skipped and pruned.
func (s *Store) List(ctx context.Context, limit int) ([]*Session, error) {
	ids, err := s.kv.ZRevRangeByScore(ctx, indexKey, limit)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
				_ = s.kv.ZRem(ctx, indexKey, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
