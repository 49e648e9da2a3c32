package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
)

const (
	keyIdentity   = "identity"
	keyTenant     = "tenant"
	keyEmployment = "employment"
	keyCandidates = "candidates"
)

// Session is the typed view of one login stored under its id.
type Session struct {
	id    string
	store Store
}

func New(store Store, id string) *Session {
	return &Session{id: id, store: store}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) key(name string) string {
	return s.id + ":" + name
}

func (s *Session) Identity(ctx context.Context) (model.Identity, error) {
	return get[model.Identity](ctx, s.store, s.key(keyIdentity))
}

func (s *Session) SetIdentity(ctx context.Context, id model.Identity) error {
	return set(ctx, s.store, s.key(keyIdentity), id)
}

// Tenant returns the selected tenant.
func (s *Session) Tenant(ctx context.Context) (model.TenantMembership, error) {
	return get[model.TenantMembership](ctx, s.store, s.key(keyTenant))
}

// SelectTenant stores the tenant together with the employment record that
// authorized it, and drops the pending candidate list.
func (s *Session) SelectTenant(ctx context.Context, t model.TenantMembership, e model.EmploymentRecord) error {
	if err := set(ctx, s.store, s.key(keyEmployment), e); err != nil {
		return err
	}

	if err := set(ctx, s.store, s.key(keyTenant), t); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, s.key(keyCandidates)); err != nil {
		return fmt.Errorf("delete candidates: %w", err)
	}

	return nil
}

// ClearTenant removes the selected tenant and its employment record.
func (s *Session) ClearTenant(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key(keyTenant), s.key(keyEmployment)); err != nil {
		return fmt.Errorf("clear tenant: %w", err)
	}

	return nil
}

func (s *Session) Employment(ctx context.Context) (model.EmploymentRecord, error) {
	return get[model.EmploymentRecord](ctx, s.store, s.key(keyEmployment))
}

// Candidates returns the deduplicated tenants awaiting a selection.
func (s *Session) Candidates(ctx context.Context) ([]model.TenantMembership, error) {
	return get[[]model.TenantMembership](ctx, s.store, s.key(keyCandidates))
}

func (s *Session) SetCandidates(ctx context.Context, ts []model.TenantMembership) error {
	return set(ctx, s.store, s.key(keyCandidates), ts)
}

// Clear removes everything kept for the session.
func (s *Session) Clear(ctx context.Context) error {
	err := s.store.Delete(ctx,
		s.key(keyIdentity),
		s.key(keyTenant),
		s.key(keyEmployment),
		s.key(keyCandidates))
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	return nil
}

func get[T any](ctx context.Context, st Store, key string) (T, error) {
	var v T
	raw, err := st.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v, ErrNotFound
		}

		return v, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}

	return v, nil
}

func set(ctx context.Context, st Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := st.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}

// GetJSON decodes the value stored at key.
func GetJSON[T any](ctx context.Context, st Store, key string) (T, error) {
	return get[T](ctx, st, key)
}

// SetJSON stores v encoded as json at key.
func SetJSON(ctx context.Context, st Store, key string, v any) error {
	return set(ctx, st, key, v)
}
