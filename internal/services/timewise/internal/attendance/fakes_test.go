package attendance

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/lock"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
)

// fakeRemote answers searches from the tasks it accepted.
type fakeRemote struct {
	mu         sync.Mutex
	tasks      []wfm.Task
	searches   []wfm.SearchRequest
	searchErr  error
	createErr  error
	createdTs  int64
	searchHook func(ctx context.Context)
}

func (f *fakeRemote) SearchAttendance(ctx context.Context, tenant string, r wfm.SearchRequest) ([]wfm.AttendanceHit, error) {
	if f.searchHook != nil {
		f.searchHook(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.searches = append(f.searches, r)
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var hits []wfm.AttendanceHit
	for i, t := range f.tasks {
		if !slices.Contains(r.Filter, wfm.Eq("company", tenant)) ||
			!slices.Contains(r.Filter, wfm.Eq("ref1", t.Ref1)) ||
			!slices.Contains(r.Filter, wfm.Eq("ref2", t.Ref2)) {
			continue
		}

		if slices.Contains(r.Filter, wfm.In("status", model.AttendanceWorking)) && t.Status != model.AttendanceWorking {
			continue
		}

		in := t.Detail.CheckInInfo
		hits = append(hits, wfm.AttendanceHit{
			ID:        fmt.Sprintf("task-%d", i+1),
			Ref1:      t.Ref1,
			Ref2:      t.Ref2,
			Status:    t.Status,
			Timestamp: f.createdTs,
			Detail:    wfm.AttendanceDetail{CheckInInfo: &in},
		})
	}

	slices.Reverse(hits)
	return hits, nil
}

func (f *fakeRemote) CreateTask(ctx context.Context, tenant string, t wfm.Task) (wfm.TaskCreated, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return wfm.TaskCreated{}, f.createErr
	}

	f.tasks = append(f.tasks, t)
	return wfm.TaskCreated{ID: fmt.Sprintf("task-%d", len(f.tasks)), Timestamp: f.createdTs}, nil
}

func (f *fakeRemote) created() []wfm.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tasks)
}

type mockMirror struct {
	loadFunc func(ctx context.Context, key MirrorKey) (model.AttendanceRecord, error)
	saveFunc func(ctx context.Context, key MirrorKey, rec model.AttendanceRecord) error
}

func (m *mockMirror) Load(ctx context.Context, key MirrorKey) (model.AttendanceRecord, error) {
	return m.loadFunc(ctx, key)
}

func (m *mockMirror) Save(ctx context.Context, key MirrorKey, rec model.AttendanceRecord) error {
	return m.saveFunc(ctx, key, rec)
}

type mockUpdater struct {
	mockMirror
	updateFunc func(ctx context.Context, key MirrorKey, fn UpdateFunc) error
}

func (m *mockUpdater) Update(ctx context.Context, key MirrorKey, fn UpdateFunc) error {
	return m.updateFunc(ctx, key, fn)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	bangkok = time.FixedZone("ICT", 7*60*60)
	office  = model.WorkLocation{
		ID:        "loc-1",
		GUID:      "loc-guid",
		Alias:     "HQ",
		Address:   "1 Silom Road",
		Point:     model.GeoFix{Lat: 13.7563, Lng: 100.5018}.Point(),
		IsPrimary: true,
	}
	near = model.GeoFix{Lat: 13.75635, Lng: 100.50185}
	far  = model.GeoFix{Lat: 13.7563, Lng: 100.5027}
)

func subject() Subject {
	return Subject{
		Identity: model.Identity{
			ID:      "U1",
			Profile: model.Profile{DisplayName: "somchai.line", PictureURL: "https://pic.example.com/u1"},
		},
		Tenant: "ACME",
		Employment: model.EmploymentRecord{
			ID:            "emp-1",
			TaskGUID:      "task-guid",
			Name:          "Somchai Jaidee",
			WorkLocations: []model.WorkLocation{office},
		},
	}
}

type testEnv struct {
	svc    *Service
	remote *fakeRemote
	mirror *StoreMirror
	gate   *lock.Local
	clock  *clock
}

func newTestEnv(t *testing.T, opts ...ServiceOption) *testEnv {
	t.Helper()

	mem := session.NewMemory(1000, time.Hour)
	t.Cleanup(mem.Close)

	env := &testEnv{
		remote: &fakeRemote{},
		mirror: NewStoreMirror(mem),
		gate:   lock.NewLocal(),
		clock:  &clock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, bangkok)},
	}

	base := []ServiceOption{
		WithRemote(env.remote),
		WithMirror(env.mirror),
		WithGate(env.gate),
		WithTimeZone(bangkok),
		WithClock(env.clock.Now),
		WithLocationTimeout(time.Second),
	}
	env.svc = NewService(append(base, opts...)...)
	return env
}

func (e *testEnv) todayKey() MirrorKey {
	return MirrorKey{Identity: "U1", Tenant: "ACME", DayKey: e.svc.Today().Key}
}

func fixAt(f model.GeoFix) location.Source {
	return location.Reported{Fix: &f}
}
