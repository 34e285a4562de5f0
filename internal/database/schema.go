package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the DDL applied by Migrate, in dependency order.  Every
// statement is idempotent.
//
// show_seat_claims is the occupancy map of a show: its primary key makes a
// seat claimable by exactly one booking, and the RESTRICT foreign key
// refuses to drop a show that still has claims.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		name          VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('CUSTOMER','ADMIN') NOT NULL DEFAULT 'CUSTOMER',
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_favorites (
		user_id    BIGINT UNSIGNED NOT NULL,
		movie_id   VARCHAR(64) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, movie_id),
		CONSTRAINT fk_favorites_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS shows (
		id          CHAR(36) PRIMARY KEY,
		movie_id    VARCHAR(64) NOT NULL,
		movie_title VARCHAR(255) NOT NULL DEFAULT '',
		starts_at   DATETIME NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_shows_starts_at (starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           CHAR(36) PRIMARY KEY,
		show_id      CHAR(36) NOT NULL,
		user_id      BIGINT UNSIGNED NOT NULL,
		seats        JSON NOT NULL,
		amount_cents INT UNSIGNED NOT NULL,
		status       ENUM('pending','paid') NOT NULL DEFAULT 'pending',
		payment_link VARCHAR(1024) NOT NULL DEFAULT '',
		created_at   DATETIME(3) NOT NULL,
		KEY idx_bookings_user (user_id, created_at),
		KEY idx_bookings_status_created (status, created_at),
		CONSTRAINT fk_bookings_show FOREIGN KEY (show_id) REFERENCES shows(id) ON DELETE RESTRICT,
		CONSTRAINT fk_bookings_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS show_seat_claims (
		show_id    CHAR(36) NOT NULL,
		seat_id    VARCHAR(8) NOT NULL,
		booking_id CHAR(36) NOT NULL,
		PRIMARY KEY (show_id, seat_id),
		KEY idx_claims_booking (booking_id),
		CONSTRAINT fk_claims_show FOREIGN KEY (show_id) REFERENCES shows(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_type   VARCHAR(64) NOT NULL,
		payload      JSON NOT NULL,
		created_at   DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		published_at DATETIME(3) NULL,
		KEY idx_outbox_unpublished (published_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
