package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
)

var ErrNoRecord = errors.New("no attendance record")

// MirrorKey addresses one day of one employee in one tenant.
type MirrorKey struct {
	Identity string
	Tenant   string
	DayKey   string
}

func (k MirrorKey) String() string {
	return k.Identity + ":" + k.Tenant + ":" + k.DayKey
}

// Mirror keeps a display copy of the day's attendance. Load reports
// ErrNoRecord when nothing was saved for the key.
type Mirror interface {
	Load(ctx context.Context, key MirrorKey) (model.AttendanceRecord, error)
	Save(ctx context.Context, key MirrorKey, rec model.AttendanceRecord) error
}

// UpdateFunc receives the result of loading a key and returns the record to
// store in its place. Returning an error leaves the stored record unchanged.
type UpdateFunc func(rec model.AttendanceRecord, err error) (model.AttendanceRecord, error)

// Updater is a Mirror that runs read-modify-write cycles atomically.
type Updater interface {
	Update(ctx context.Context, key MirrorKey, fn UpdateFunc) error
}

func update(ctx context.Context, m Mirror, key MirrorKey, fn UpdateFunc) error {
	if u, ok := m.(Updater); ok {
		return u.Update(ctx, key, fn)
	}

	rec, err := fn(m.Load(ctx, key))
	if err != nil {
		return err
	}

	return m.Save(ctx, key, rec)
}

// StoreMirror keeps mirror records in a session store.
type StoreMirror struct {
	store session.Store
}

func NewStoreMirror(st session.Store) *StoreMirror {
	return &StoreMirror{store: st}
}

func (m *StoreMirror) key(k MirrorKey) string {
	return "attendance:" + k.String()
}

func (m *StoreMirror) Load(ctx context.Context, k MirrorKey) (model.AttendanceRecord, error) {
	rec, err := session.GetJSON[model.AttendanceRecord](ctx, m.store, m.key(k))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.AttendanceRecord{}, ErrNoRecord
		}

		return model.AttendanceRecord{}, fmt.Errorf("load mirror: %w", err)
	}

	return rec, nil
}

func (m *StoreMirror) Save(ctx context.Context, k MirrorKey, rec model.AttendanceRecord) error {
	if err := session.SetJSON(ctx, m.store, m.key(k), rec); err != nil {
		return fmt.Errorf("save mirror: %w", err)
	}

	return nil
}
