package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	// clientFoundRows=true makes RowsAffected count matched rows, not changed
	// rows, so a value-identical conditional UPDATE still reports 1.
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// schema holds the two tables the engine owns.  The UNIQUE keys on claims
// back the exclusivity and credential invariants at the storage level, and
// the composite indexes serve the availability feed and the expiry sweep.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id            CHAR(21)     NOT NULL,
		title         VARCHAR(255) NOT NULL,
		description   TEXT         NOT NULL,
		quantity      INT UNSIGNED NOT NULL,
		location      VARCHAR(255) NOT NULL,
		dietary_tags  VARCHAR(512) NOT NULL DEFAULT '',
		publisher_id  VARCHAR(64)  NOT NULL,
		state         ENUM('AVAILABLE','CLAIMED','EXPIRED') NOT NULL DEFAULT 'AVAILABLE',
		created_at    DATETIME     NOT NULL,
		expires_at    DATETIME     NOT NULL,
		PRIMARY KEY (id),
		KEY idx_listings_state_created (state, created_at),
		KEY idx_listings_state_expires (state, expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS claims (
		id           CHAR(21)    NOT NULL,
		listing_id   CHAR(21)    NOT NULL,
		claimant_id  VARCHAR(64) NOT NULL,
		pickup_code  CHAR(6)     NOT NULL,
		status       ENUM('PENDING','FULFILLED','CANCELLED') NOT NULL DEFAULT 'PENDING',
		created_at   DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_claims_listing (listing_id),
		UNIQUE KEY uq_claims_pickup_code (pickup_code),
		KEY idx_claims_claimant (claimant_id, created_at),
		CONSTRAINT fk_claims_listing FOREIGN KEY (listing_id) REFERENCES listings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the engine's tables when they do not exist yet.
// Additive schema changes ship as new statements here.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
