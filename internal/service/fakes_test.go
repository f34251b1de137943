package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-sessions/internal/catalog"
	"github.com/iliyamo/cinema-sessions/internal/model"
	"github.com/iliyamo/cinema-sessions/internal/queue"
	"github.com/iliyamo/cinema-sessions/internal/repository"
)

// memSessions is an in-memory SessionStore with the same version-guarded
// semantics as the MySQL repository.
type memSessions struct {
	mu        sync.Mutex
	nextID    uint64
	rows      map[uint64]model.Session
	conflicts int // number of CompareAndSetSeats calls to fail on purpose
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[uint64]model.Session{}}
}

func (m *memSessions) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.rows[s.ID] = *s
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id uint64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memSessions) List(_ context.Context, f repository.SessionFilter) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Session, 0)
	for _, s := range m.rows {
		if f.Upcoming && s.Date.Before(f.Today) {
			continue
		}
		if !f.Upcoming && f.Date != nil && !s.Date.Equal(*f.Date) {
			continue
		}
		if f.Room != "" && s.RoomNumber != f.Room {
			continue
		}
		if f.Active != nil && s.IsActive != *f.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *memSessions) ListUpcomingByMovie(ctx context.Context, movieID string, today time.Time) ([]model.Session, error) {
	active := true
	all, _ := m.List(ctx, repository.SessionFilter{Active: &active, Upcoming: true, Today: today})
	out := make([]model.Session, 0)
	for _, s := range all {
		if s.MovieID == movieID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) CompareAndSetSeats(_ context.Context, id, version uint64, available int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return false, nil
	}
	s, ok := m.rows[id]
	if !ok || s.Version != version {
		return false, nil
	}
	s.AvailableSeats = available
	s.Version++
	m.rows[id] = s
	return true, nil
}

func (m *memSessions) UpdateIfVersion(_ context.Context, s *model.Session, version uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[s.ID]
	if !ok || cur.Version != version {
		return false, nil
	}
	next := *s
	next.Version = version + 1
	m.rows[s.ID] = next
	return true, nil
}

func (m *memSessions) SetActive(_ context.Context, id uint64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.IsActive = active
	s.Version++
	m.rows[id] = s
	return nil
}

func (m *memSessions) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memSessions) available(id uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].AvailableSeats
}

// memReservations is an in-memory ReservationStore enforcing the unique
// code index.  The fail* fields inject one-shot errors.
type memReservations struct {
	mu         sync.Mutex
	nextID     uint64
	rows       map[uint64]model.Reservation
	codes      map[string]uint64
	failCreate error
	failCancel error
	failDelete error
	failCount  error

	failAfterCreate     error // the row is stored, then Create returns this
	failReadAfterCancel error // the next GetByID after a matched transition fails
	failGetByCode       error
	pendingRead         error
}

func newMemReservations() *memReservations {
	return &memReservations{rows: map[uint64]model.Reservation{}, codes: map[string]uint64{}}
}

func (m *memReservations) Create(_ context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCreate; err != nil {
		m.failCreate = nil
		return err
	}
	if _, dup := m.codes[r.ReservationCode]; dup {
		return repository.ErrDuplicateCode
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.rows[r.ID] = *r
	m.codes[r.ReservationCode] = r.ID
	if err := m.failAfterCreate; err != nil {
		m.failAfterCreate = nil
		return err
	}
	return nil
}

func (m *memReservations) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pendingRead; err != nil {
		m.pendingRead = nil
		return nil, err
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return &r, nil
}

func (m *memReservations) GetByCode(ctx context.Context, code string) (*model.Reservation, error) {
	m.mu.Lock()
	if err := m.failGetByCode; err != nil {
		m.failGetByCode = nil
		m.mu.Unlock()
		return nil, err
	}
	id, ok := m.codes[code]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memReservations) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reservation, 0)
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memReservations) ListAll(_ context.Context) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reservation, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memReservations) TransitionStatus(_ context.Context, id uint64, from, to model.ReservationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCancel; err != nil {
		m.failCancel = nil
		return false, err
	}
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	m.rows[id] = r
	m.pendingRead, m.failReadAfterCancel = m.failReadAfterCancel, nil
	return true, nil
}

func (m *memReservations) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDelete; err != nil {
		m.failDelete = nil
		return err
	}
	r, ok := m.rows[id]
	if !ok {
		return repository.ErrReservationNotFound
	}
	delete(m.codes, r.ReservationCode)
	delete(m.rows, id)
	return nil
}

func (m *memReservations) CountConfirmedBySession(_ context.Context, sessionID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCount; err != nil {
		m.failCount = nil
		return 0, err
	}
	n := 0
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.Status == model.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (m *memReservations) confirmedSeats(sessionID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.Status == model.StatusConfirmed {
			n += r.NumberOfSeats
		}
	}
	return n
}

func (m *memReservations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// stubMovies answers catalog lookups from a map; err, when set, is returned
// for every lookup.
type stubMovies struct {
	movies map[string]catalog.Movie
	err    error
}

func (s stubMovies) Get(_ context.Context, id string) (*catalog.Movie, error) {
	if s.err != nil {
		return nil, s.err
	}
	m, ok := s.movies[id]
	if !ok {
		return nil, catalog.ErrMovieNotFound
	}
	return &m, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var errStoreDown = errors.New("store down")
