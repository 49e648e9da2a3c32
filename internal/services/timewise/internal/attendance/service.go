package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/geo"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/lock"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRadius          = 50.0
	DefaultLocationTimeout = 15 * time.Second

	dayHitsPerPage = 10
	roleEmployee   = "Employee"
	roleEmployeeTh = "พนักงาน"
	unknownName    = "Unknown"
)

type remoteStore interface {
	SearchAttendance(ctx context.Context, tenant string, r wfm.SearchRequest) ([]wfm.AttendanceHit, error)
	CreateTask(ctx context.Context, tenant string, t wfm.Task) (wfm.TaskCreated, error)
}

type gate interface {
	Acquire(ctx context.Context, key string) (lock.Release, error)
}

// Subject is the employee an attendance operation is recorded for.
type Subject struct {
	Identity   model.Identity
	Tenant     string
	Employment model.EmploymentRecord
}

// Day is a calendar day in the attendance time zone.
type Day struct {
	Date string
	Key  string
}

type CheckInResult struct {
	Timestamp      time.Time
	DistanceMeters float64
	TaskID         string
	Record         model.AttendanceRecord
}

type CheckOutResult struct {
	Timestamp time.Time
	Record    model.AttendanceRecord
}

// Status is today's attendance. Fresh is false when the remote store could
// not be reached and Record comes from the mirror; StaleReason then holds the
// remote error.
type Status struct {
	ClockedIn   bool
	Record      *model.AttendanceRecord
	Fresh       bool
	StaleReason error
}

// Service runs the check-in/check-out state machine for one employee per day.
type Service struct {
	remote     remoteStore
	mirror     Mirror
	gate       gate
	tz         *time.Location
	radius     float64
	locTimeout time.Duration
	now        func() time.Time
	log        *slog.Logger
}

type ServiceOption func(*Service) *Service

func WithRemote(r remoteStore) ServiceOption {
	return func(s *Service) *Service {
		s.remote = r
		return s
	}
}

func WithMirror(m Mirror) ServiceOption {
	return func(s *Service) *Service {
		s.mirror = m
		return s
	}
}

func WithGate(g gate) ServiceOption {
	return func(s *Service) *Service {
		s.gate = g
		return s
	}
}

// WithTimeZone sets the zone whose calendar date defines "today".
func WithTimeZone(tz *time.Location) ServiceOption {
	return func(s *Service) *Service {
		s.tz = tz
		return s
	}
}

func WithRadius(meters float64) ServiceOption {
	return func(s *Service) *Service {
		s.radius = meters
		return s
	}
}

func WithLocationTimeout(d time.Duration) ServiceOption {
	return func(s *Service) *Service {
		s.locTimeout = d
		return s
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) *Service {
		s.now = now
		return s
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) *Service {
		s.log = l
		return s
	}
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		tz:         time.UTC,
		radius:     DefaultRadius,
		locTimeout: DefaultLocationTimeout,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.remote == nil {
		panic("remote store is required")
	}

	if s.mirror == nil {
		panic("mirror is required")
	}

	if s.gate == nil {
		panic("gate is required")
	}

	return s
}

// Today returns the current calendar day and its midnight key.
func (s *Service) Today() Day {
	y, m, d := s.now().In(s.tz).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.tz)

	return Day{
		Date: midnight.Format(time.DateOnly),
		Key:  strconv.FormatInt(midnight.UnixMilli(), 10),
	}
}

func (s *Service) CheckIn(ctx context.Context, sub Subject, src location.Source) (CheckInResult, error) {
	fix, err := location.Acquire(ctx, src, s.locTimeout)
	if err != nil {
		return CheckInResult{}, fmt.Errorf("acquire location: %w", err)
	}

	day := s.Today()
	log := s.logger(sub, day)

	release, err := s.acquire(ctx, sub, day)
	if err != nil {
		return CheckInResult{}, err
	}
	defer release()

	hits, err := s.remote.SearchAttendance(ctx, sub.Tenant, dayQuery(sub, day, true))
	if err != nil {
		return CheckInResult{}, fmt.Errorf("check existing check-in: %w", err)
	}

	if len(hits) > 0 {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}

	wl, ok := sub.Employment.PrimaryLocation()
	if !ok {
		return CheckInResult{}, ErrNoWorkLocation
	}

	dist := geo.Between(fix.Point(), wl.Point)
	if dist > s.radius {
		return CheckInResult{}, &OutOfGeofenceError{Distance: dist, Radius: s.radius}
	}

	now := s.now()
	created, err := s.remote.CreateTask(ctx, sub.Tenant, checkInTask(sub, wl, fix, dist, day, now))
	if err != nil {
		return CheckInResult{}, fmt.Errorf("submit check-in: %w", err)
	}

	at := now
	if created.Timestamp > 0 {
		at = time.UnixMilli(created.Timestamp)
	}

	rec := model.AttendanceRecord{
		Date:    day.Date,
		DayKey:  day.Key,
		TaskID:  created.ID,
		Status:  model.AttendanceWorking,
		CheckIn: &model.Punch{At: at, Fix: &fix},
	}

	if err := s.mirror.Save(ctx, mirrorKey(sub, day), rec); err != nil {
		log.Warn("failed to mirror check-in", "error", err)
	}

	log.Info("checked in", "distance_m", dist, "task_id", created.ID)
	return CheckInResult{
		Timestamp:      at,
		DistanceMeters: dist,
		TaskID:         created.ID,
		Record:         rec,
	}, nil
}

// CheckOut records the check-out in the mirror. The location is optional and
// no geofence applies. Mirrors implementing Updater see the whole cycle in a
// single Update call.
func (s *Service) CheckOut(ctx context.Context, sub Subject, src location.Source) (CheckOutResult, error) {
	day := s.Today()
	log := s.logger(sub, day)

	var fix *model.GeoFix
	f, err := location.Acquire(ctx, src, s.locTimeout)
	switch {
	case err == nil:
		fix = &f
	case ctx.Err() != nil:
		return CheckOutResult{}, fmt.Errorf("acquire location: %w", ctx.Err())
	default:
		log.Info("checking out without location", "reason", err)
	}

	release, err := s.acquire(ctx, sub, day)
	if err != nil {
		return CheckOutResult{}, err
	}
	defer release()

	var (
		now time.Time
		rec model.AttendanceRecord
	)
	err = update(ctx, s.mirror, mirrorKey(sub, day), func(stored model.AttendanceRecord, err error) (model.AttendanceRecord, error) {
		if err != nil {
			if !errors.Is(err, ErrNoRecord) {
				log.Warn("mirror unreadable, rebuilding from remote", "error", err)
			}

			stored, err = s.rebuild(ctx, sub, day)
			if err != nil {
				return stored, err
			}
		}

		if stored.CheckIn == nil {
			return stored, ErrNotClockedIn
		}

		if stored.CheckOut != nil {
			return stored, ErrAlreadyCheckedOut
		}

		now = s.now()
		if !now.After(stored.CheckIn.At) {
			return stored, ErrCheckOutBeforeCheckIn
		}

		stored.CheckOut = &model.Punch{At: now, Fix: fix}
		rec = stored
		return stored, nil
	})
	if err != nil {
		return CheckOutResult{}, fmt.Errorf("check out: %w", err)
	}

	log.Info("checked out", "task_id", rec.TaskID)
	return CheckOutResult{Timestamp: now, Record: rec}, nil
}

// TodayStatus reads the remote store and the mirror concurrently. The remote
// answer wins; the mirror only contributes the check-out or stands in, marked
// stale, when the remote store fails.
func (s *Service) TodayStatus(ctx context.Context, sub Subject) (Status, error) {
	day := s.Today()
	key := mirrorKey(sub, day)

	var (
		g         errgroup.Group
		hits      []wfm.AttendanceHit
		remoteErr error
		mirrored  model.AttendanceRecord
		mirrorErr error
	)

	// neither read cancels the other
	g.Go(func() error {
		hits, remoteErr = s.remote.SearchAttendance(ctx, sub.Tenant, dayQuery(sub, day, false))
		return nil
	})
	g.Go(func() error {
		mirrored, mirrorErr = s.mirror.Load(ctx, key)
		return nil
	})
	_ = g.Wait()

	if remoteErr == nil {
		st := Status{Fresh: true}
		if len(hits) == 0 {
			return st, nil
		}

		rec := recordFromHit(hits[0], day)
		if mirrorErr == nil && mirrored.CheckOut != nil && (mirrored.TaskID == "" || mirrored.TaskID == rec.TaskID) {
			rec.CheckOut = mirrored.CheckOut
		}

		st.Record = &rec
		st.ClockedIn = rec.ClockedIn() && rec.Status == model.AttendanceWorking
		return st, nil
	}

	if ctx.Err() != nil {
		return Status{}, fmt.Errorf("query today: %w", ctx.Err())
	}

	if mirrorErr != nil {
		if !errors.Is(mirrorErr, ErrNoRecord) {
			s.logger(sub, day).Warn("mirror unreadable", "error", mirrorErr)
		}
		return Status{}, fmt.Errorf("query today: %w", remoteErr)
	}

	s.logger(sub, day).Warn("serving stale attendance from mirror", "error", remoteErr)
	return Status{
		ClockedIn:   mirrored.ClockedIn(),
		Record:      &mirrored,
		Fresh:       false,
		StaleReason: remoteErr,
	}, nil
}

func (s *Service) acquire(ctx context.Context, sub Subject, day Day) (lock.Release, error) {
	release, err := s.gate.Acquire(ctx, mirrorKey(sub, day).String())
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, ErrOperationInProgress
		}

		return nil, fmt.Errorf("acquire gate: %w", err)
	}

	return release, nil
}

// rebuild recovers the day's check-in from the remote WORKING record.
func (s *Service) rebuild(ctx context.Context, sub Subject, day Day) (model.AttendanceRecord, error) {
	hits, err := s.remote.SearchAttendance(ctx, sub.Tenant, dayQuery(sub, day, true))
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("query check-in: %w", err)
	}

	if len(hits) == 0 {
		return model.AttendanceRecord{}, ErrNotClockedIn
	}

	return recordFromHit(hits[0], day), nil
}

func (s *Service) logger(sub Subject, day Day) *slog.Logger {
	return s.log.With("identity", sub.Identity.ID, "tenant", sub.Tenant, "day", day.Date)
}

func mirrorKey(sub Subject, day Day) MirrorKey {
	return MirrorKey{Identity: sub.Identity.ID, Tenant: sub.Tenant, DayKey: day.Key}
}

func dayQuery(sub Subject, day Day, working bool) wfm.SearchRequest {
	filter := []string{
		wfm.Eq("company", sub.Tenant),
		wfm.In("workflowId", wfm.WorkflowAttendance),
		wfm.Eq("type", wfm.TypeTask),
		wfm.Eq("ref1", sub.Employment.ID),
		wfm.Eq("ref2", day.Key),
	}
	if working {
		filter = append(filter, wfm.In("status", model.AttendanceWorking))
	}

	return wfm.SearchRequest{
		HitsPerPage: dayHitsPerPage,
		Page:        1,
		Filter:      filter,
		Sort:        []string{wfm.Desc("timestamp")},
	}
}

func recordFromHit(h wfm.AttendanceHit, day Day) model.AttendanceRecord {
	rec := model.AttendanceRecord{
		Date:   day.Date,
		DayKey: day.Key,
		TaskID: h.ID,
		Status: h.Status,
	}

	if in := h.Detail.CheckInInfo; in != nil {
		rec.CheckIn = punchFromInfo(*in, h.Timestamp)
	}

	if out := h.Detail.CheckOutInfo; out != nil && out.Timestamp > 0 {
		rec.CheckOut = punchFromInfo(*out, 0)
	}

	return rec
}

// punchFromInfo prefers the server timestamp of the record when present.
func punchFromInfo(p wfm.PunchInfo, serverTs int64) *model.Punch {
	ts := p.Timestamp
	if serverTs > 0 {
		ts = serverTs
	}

	punch := &model.Punch{At: time.UnixMilli(ts)}
	if p.Location != nil {
		punch.Fix = &model.GeoFix{Lat: p.Location.Lat, Lng: p.Location.Lng}
	}

	return punch
}

func checkInTask(sub Subject, wl model.WorkLocation, fix model.GeoFix, dist float64, day Day, now time.Time) wfm.Task {
	ts := now.UnixMilli()
	guid := sub.Employment.TaskGUID
	by := firstNonEmpty(sub.Employment.Name, sub.Identity.Profile.DisplayName, unknownName)
	display := firstNonEmpty(sub.Identity.Profile.DisplayName, sub.Employment.Name, unknownName)
	km := decimal.NewFromFloat(dist).Div(decimal.NewFromInt(1000)).Round(4)

	return wfm.Task{
		Company:    sub.Tenant,
		Ref1:       sub.Employment.ID,
		Ref2:       day.Key,
		Status:     model.AttendanceWorking,
		WorkflowID: wfm.WorkflowAttendance,
		Detail: wfm.TaskDetail{
			WorkLocation: wfm.WorkLocationRef{
				Address:     wl.Address,
				GeoLocation: wfm.LatLng{Lat: wl.Point.Lat, Lng: wl.Point.Lng},
				By:          by,
				Alias:       wl.Alias,
				GUID:        wl.GUID,
				ID:          wl.ID,
				Timestamp:   ts,
			},
			Assignees: []wfm.TaskAssignee{{
				Index:    "0," + guid,
				UserInfo: wfm.UserInfo{DisplayName: display, PictureURL: sub.Identity.Profile.PictureURL},
				GUID:     guid,
				Role:     roleEmployee,
				RoleInfo: wfm.RoleInfo{RoleEn: roleEmployee, RoleTh: roleEmployeeTh},
				LUID:     sub.Identity.ID,
			}},
			TaskInfo: wfm.TaskInfo{
				GUID:        guid,
				CreateBy:    display,
				IsCopied:    false,
				CreatedDate: ts,
			},
			CheckInInfo: wfm.PunchInfo{
				Images:    []string{},
				Location:  &wfm.LatLng{Lat: fix.Lat, Lng: fix.Lng},
				Distance:  json.Number(km.String()),
				Timestamp: ts,
			},
		},
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
