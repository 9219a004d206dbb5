package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/crm/inquiries"
	"github.com/meridian-erp/meridian-erp/internal/crm/matching"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// State names the workflow position a session is parked in. Await states block
// commit indefinitely until a terminal decision arrives.
type State string

const (
	StateAwaitingSelection   State = "awaiting_selection"
	StateAwaitingNewCustomer State = "awaiting_new_customer"
	StateAwaitingUpdate      State = "awaiting_update_decision"
	StateResolved            State = "resolved"
)

var (
	ErrSessionNotFound = fmt.Errorf("%w: resolution session", shared.ErrNotFound)
	ErrSessionInFlight = fmt.Errorf("%w: a resolution session is already in flight for this client", shared.ErrConflict)
)

// Session is the arena entry for one end-to-end resolution attempt. It owns
// the pending draft exclusively; nothing here is shared across concurrent
// attempts. Sessions live in Redis keyed by a generated id so that later
// decision callbacks see exactly the state the earlier steps produced, never
// ambient UI state.
type Session struct {
	ID          string               `json:"id"`
	ClientRef   string               `json:"client_ref,omitempty"`
	State       State                `json:"state"`
	CompanyName string               `json:"company_name"`
	Contact     ContactFields        `json:"contact"`
	Draft       inquiries.Draft      `json:"draft"`
	Candidates  []matching.Candidate `json:"candidates,omitempty"`
	Changes     *FieldChangeSet      `json:"changes,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// SessionStore persists resolution sessions in Redis. The TTL is housekeeping
// against abandoned browsers, not a workflow timeout; an operator can park a
// session in an await state for as long as the TTL allows and the workflow
// makes no attempt to expire it sooner.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// New allocates a fresh session. When clientRef is non-empty the store claims
// a single-flight slot for that client; a second concurrent session for the
// same client is refused until the first reaches a terminal state.
func (s *SessionStore) New(ctx context.Context, clientRef string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		ClientRef: clientRef,
		CreatedAt: time.Now().UTC(),
	}

	if clientRef != "" {
		ok, err := s.client.SetNX(ctx, s.ownerKey(clientRef), sess.ID, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: claim session slot: %v", shared.ErrTransient, err)
		}
		if !ok {
			return nil, ErrSessionInFlight
		}
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: load session: %v", shared.ErrTransient, err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.sessionKey(sess.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save session: %v", shared.ErrTransient, err)
	}
	return nil
}

// Delete removes the session and releases its single-flight slot.
func (s *SessionStore) Delete(ctx context.Context, sess *Session) error {
	if err := s.client.Del(ctx, s.sessionKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: delete session: %v", shared.ErrTransient, err)
	}
	if sess.ClientRef != "" {
		if err := s.client.Del(ctx, s.ownerKey(sess.ClientRef)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: release session slot: %v", shared.ErrTransient, err)
		}
	}
	return nil
}

func (s *SessionStore) sessionKey(id string) string {
	return "resolution:session:" + id
}

func (s *SessionStore) ownerKey(clientRef string) string {
	return "resolution:owner:" + clientRef
}
