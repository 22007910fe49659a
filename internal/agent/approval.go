package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/kvstore"
)

const approvalKeyPrefix = "approvals:"

// Ledger persists the set of operation ids a human has authorized for a
// session. Entries live as long as the session's TTL and never expire on
// their own.
type Ledger struct {
	kv  kvstore.Store
	ttl time.Duration
}

func NewLedger(kv kvstore.Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Ledger{kv: kv, ttl: ttl}
}

func approvalKey(sessionID string) string { return approvalKeyPrefix + sessionID }

func (l *Ledger) load(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	raw, err := l.kv.Get(ctx, approvalKey(sessionID))
	if err != nil {
		if errors.Is(err, &errs.Error{Kind: errs.KindNotFound}) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode approval ledger: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (l *Ledger) save(ctx context.Context, sessionID string, set map[string]struct{}) error {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode approval ledger: %w", err)
	}
	return l.kv.Set(ctx, approvalKey(sessionID), string(data), l.ttl)
}

// Approve records an operation id as authorized.
func (l *Ledger) Approve(ctx context.Context, sessionID, operationID string) error {
	set, err := l.load(ctx, sessionID)
	if err != nil {
		return err
	}
	set[operationID] = struct{}{}
	return l.save(ctx, sessionID, set)
}

// Revoke withdraws a previously granted approval.
func (l *Ledger) Revoke(ctx context.Context, sessionID, operationID string) error {
	set, err := l.load(ctx, sessionID)
	if err != nil {
		return err
	}
	delete(set, operationID)
	return l.save(ctx, sessionID, set)
}

// Approved reports whether the operation id is authorized right now.
func (l *Ledger) Approved(ctx context.Context, sessionID, operationID string) (bool, error) {
	set, err := l.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	_, ok := set[operationID]
	return ok, nil
}

// Clear removes the whole ledger for a session.
func (l *Ledger) Clear(ctx context.Context, sessionID string) error {
	return l.kv.Del(ctx, approvalKey(sessionID))
}
