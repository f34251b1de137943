package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-sessions/internal/model"
)

var sessionCols = []string{
	"id", "movie_id", "movie_name", "room_number", "session_date", "start_time", "end_time",
	"total_seats", "available_seats", "base_price_cents", "is_active", "version", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestSessionRepo_GetByID(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(7, "m-1", "Arrival", "A1", day, "19:00", "21:00", 50, 48, 1000, true, 3, now, now))

	s, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.ID)
	assert.Equal(t, "Arrival", s.MovieName)
	assert.Equal(t, 48, s.AvailableSeats)
	assert.Equal(t, uint64(3), s.Version)
	assert.Equal(t, 2, s.BookedSeats())
	assert.True(t, s.Date.Equal(day))
}

func TestSessionRepo_GetByIDNotFound(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
		WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepo_CompareAndSetSeats(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"version matched", 1, true},
		{"stale version", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, done := newMock(t)
			defer done()
			repo := NewSessionRepo(db)

			mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET available_seats = ?, version = version + 1")).
				WithArgs(45, uint64(7), uint64(3)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.CompareAndSetSeats(context.Background(), 7, 3, 45)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSessionRepo_ListFilters(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	active := true
	today := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_date >= ? AND room_number = ? AND is_active = ? ORDER BY session_date ASC, start_time ASC")).
		WithArgs("2026-03-14", "B2", true).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	got, err := repo.List(context.Background(), SessionFilter{Room: "B2", Active: &active, Upcoming: true, Today: today})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSessionRepo_ListByDate(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_date = ? ORDER BY")).
		WithArgs("2026-03-15").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(1, "m-1", "Arrival", "A1", day, "14:00", "16:00", 20, 20, 1000, true, 0, now, now).
			AddRow(2, "m-2", "Heat", "A1", day, "18:00", "21:00", 20, 5, 1200, true, 4, now, now))

	got, err := repo.List(context.Background(), SessionFilter{Date: &day})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Heat", got[1].MovieName)
}

func TestSessionRepo_Create(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("m-1", "Arrival", "A1", "2026-04-01", "19:00", "21:00", 30, 30, int64(1000), true).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(11, "m-1", "Arrival", "A1", day, "19:00", "21:00", 30, 30, 1000, true, 0, now, now))

	s := &model.Session{
		MovieID: "m-1", MovieName: "Arrival", RoomNumber: "A1", Date: day,
		StartTime: "19:00", EndTime: "21:00", TotalSeats: 30, AvailableSeats: 30,
		BasePriceCents: 1000, IsActive: true,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, uint64(11), s.ID)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSessionRepo_DeleteMissing(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = ?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 5), ErrSessionNotFound)
}
