package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
)

var (
	ErrNoTenantsFound = errors.New("no tenants found")
	ErrUnknownTenant  = errors.New("unknown tenant")
)

const lookupLimit = 10

type userSearcher interface {
	SearchUsers(ctx context.Context, r wfm.UserSearchRequest) ([]wfm.UserHit, error)
}

// Resolver finds the tenants an identity belongs to.
type Resolver struct {
	users userSearcher
}

func NewResolver(users userSearcher) *Resolver {
	if users == nil {
		panic("user searcher is required")
	}

	return &Resolver{users: users}
}

// Resolution is the outcome of a tenant lookup. Selected is set only when
// exactly one tenant remains after deduplication.
type Resolution struct {
	Tenants  []model.TenantMembership
	Selected *model.TenantMembership
}

// ListTenants returns every membership record of the identity as reported by
// the user search, without deduplication.
func (r *Resolver) ListTenants(ctx context.Context, id model.Identity) ([]model.TenantMembership, error) {
	hits, err := r.users.SearchUsers(ctx, wfm.UserSearchRequest{
		Limit:  lookupLimit,
		Filter: []string{wfm.Eq("lUId", id.ID)},
	})
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	if len(hits) == 0 {
		return nil, ErrNoTenantsFound
	}

	ms := make([]model.TenantMembership, 0, len(hits))
	for _, h := range hits {
		ms = append(ms, project(h))
	}

	return ms, nil
}

func (r *Resolver) Resolve(ctx context.Context, id model.Identity) (Resolution, error) {
	ms, err := r.ListTenants(ctx, id)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Tenants: Deduplicate(ms)}
	if len(res.Tenants) == 1 {
		sel := res.Tenants[0]
		res.Selected = &sel
	}

	return res, nil
}

// Deduplicate keeps one membership per tenant code in order of first
// appearance. An ACTIVE membership replaces a kept non ACTIVE one, otherwise
// the first seen wins. Input order is treated as arbitrary.
func Deduplicate(ms []model.TenantMembership) []model.TenantMembership {
	out := make([]model.TenantMembership, 0, len(ms))
	index := make(map[string]int, len(ms))

	for _, m := range ms {
		i, seen := index[m.Tenant]
		if !seen {
			index[m.Tenant] = len(out)
			out = append(out, m)
			continue
		}

		if m.Active() && !out[i].Active() {
			out[i] = m
		}
	}

	return out
}

// Find returns the candidate with the given tenant code.
func Find(ts []model.TenantMembership, code string) (model.TenantMembership, error) {
	for _, t := range ts {
		if t.Tenant == code {
			return t, nil
		}
	}

	return model.TenantMembership{}, fmt.Errorf("%w: %s", ErrUnknownTenant, code)
}

func project(h wfm.UserHit) model.TenantMembership {
	name := h.UserInfo.DisplayName
	if name == "" {
		name = strings.TrimSpace(h.FirstName + " " + h.LastName)
	}

	return model.TenantMembership{
		ID:             h.ID,
		Tenant:         h.Company,
		Module:         h.Module,
		Role:           h.Role,
		Status:         h.Status,
		EmployeeNumber: h.EmployeeNumber,
		DisplayName:    name,
		Email:          h.UserInfo.Email,
		GUID:           h.GUID,
		FirstName:      h.FirstName,
		LastName:       h.LastName,
		TeamID:         h.TeamID,
	}
}
