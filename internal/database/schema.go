package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-sessions/internal/logger"
)

// Migrate creates the tables the service needs if they do not exist yet.
// Statements are idempotent so it runs on every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	log := logger.Get()
	log.Info("running database migrations")

	migrations := []string{
		createSessionsTable,
		createReservationsTable,
	}
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		log.Debug("migration applied", "step", i+1)
	}

	log.Info("database migrations completed")
	return nil
}

// sessions.version guards every write of available_seats.
const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    movie_id         VARCHAR(64)  NOT NULL,
    movie_name       VARCHAR(255) NOT NULL,
    room_number      VARCHAR(32)  NOT NULL,
    session_date     DATE         NOT NULL,
    start_time       CHAR(5)      NOT NULL,
    end_time         CHAR(5)      NOT NULL,
    total_seats      INT          NOT NULL,
    available_seats  INT          NOT NULL,
    base_price_cents BIGINT       NOT NULL DEFAULT 1000,
    is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
    version          BIGINT UNSIGNED NOT NULL DEFAULT 0,
    created_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CONSTRAINT chk_sessions_seats CHECK (available_seats >= 0 AND available_seats <= total_seats AND total_seats >= 1),
    KEY idx_sessions_date_start (session_date, start_time),
    KEY idx_sessions_movie (movie_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// No foreign key to sessions: a reservation outlives a hard-deleted session
// and the cancel path tolerates the dangling reference.
const createReservationsTable = `
CREATE TABLE IF NOT EXISTS reservations (
    id                BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
    session_id        BIGINT UNSIGNED NOT NULL,
    user_id           BIGINT UNSIGNED NOT NULL,
    user_name         VARCHAR(255) NOT NULL,
    user_email        VARCHAR(255) NOT NULL,
    number_of_seats   INT          NOT NULL,
    unit_price_cents  BIGINT       NOT NULL,
    total_price_cents BIGINT       NOT NULL,
    discount_percent  INT          NOT NULL DEFAULT 0,
    user_type         VARCHAR(16)  NOT NULL DEFAULT 'standard',
    status            VARCHAR(16)  NOT NULL DEFAULT 'confirmed',
    reservation_code  VARCHAR(32)  NOT NULL,
    created_at        DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at        DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    UNIQUE KEY uq_reservations_code (reservation_code),
    KEY idx_reservations_user (user_id, created_at),
    KEY idx_reservations_session_status (session_id, status),
    CONSTRAINT chk_reservations_seats CHECK (number_of_seats BETWEEN 1 AND 10)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
