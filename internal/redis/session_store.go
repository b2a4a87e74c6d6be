package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Key schema:
//   session:{sessionUUID}   — JSON session record, safety TTL
//   user-sessions:{userID}  — set of session UUIDs, safety TTL refreshed on Put

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

func userSessionsKey(userID string) string {
	return "user-sessions:" + userID
}

// SessionStore is the Redis-backed domain.SessionStore. Records carry a
// safety TTL comfortably above the idle-timeout plus grace window, so keys
// orphaned by a crashed instance age out on their own. The authority's sweep
// remains the authoritative cleanup path.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a SessionStore. ttl is the safety expiry applied to
// every written record.
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: client.rdb, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *SessionStore) Put(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, s.ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.ID.String())
	pipe.Expire(ctx, userSessionsKey(session.UserID), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userSessionsKey(session.UserID), id.String())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	members, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user index: %w", err)
	}

	out := make([]*domain.Session, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		session, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if session == nil {
			// Record aged out under the index entry; drop the stale member.
			s.rdb.SRem(ctx, userSessionsKey(userID), member)
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *SessionStore) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	var cursor uint64
	for {
		keys, nextCursor, err := s.rdb.Scan(ctx, cursor, "session:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		for _, key := range keys {
			if id, err := uuid.Parse(strings.TrimPrefix(key, "session:")); err == nil {
				out = append(out, id)
			}
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
