package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"lotteria/internal/models"
)

// Open connects to the database named by dsn. Remote libsql/Turso URLs
// (libsql://, wss://, https://) use the libsql driver with the given auth
// token; anything else (file paths, :memory:) uses the embedded sqlite
// driver. The schema is created on first use.
func Open(dsn, authToken string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") || strings.HasPrefix(dsn, "https://") {
		driver = "libsql"
		if authToken != "" {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn = dsn + sep + "authToken=" + url.QueryEscape(authToken)
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func createTables(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS draws (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		total_tickets INTEGER NOT NULL,
		ticket_price REAL NOT NULL,
		created_at INTEGER NOT NULL,
		draw_time INTEGER,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_drawn INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		draw_id INTEGER NOT NULL,
		ticket_number INTEGER NOT NULL,
		user_external_id TEXT,
		user_display_name TEXT,
		status TEXT NOT NULL DEFAULT 'available',
		reserved_at INTEGER,
		approved_at INTEGER,
		UNIQUE(draw_id, ticket_number),
		FOREIGN KEY(draw_id) REFERENCES draws(id)
	);

	CREATE TABLE IF NOT EXISTS winners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		draw_id INTEGER NOT NULL,
		ticket_id INTEGER NOT NULL,
		place INTEGER NOT NULL,
		prize_amount REAL NOT NULL,
		won_at INTEGER NOT NULL,
		FOREIGN KEY(draw_id) REFERENCES draws(id),
		FOREIGN KEY(ticket_id) REFERENCES tickets(id)
	);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// EnsureAdmin creates the named admin account if it does not exist yet.
// An existing account is left untouched.
func EnsureAdmin(ctx context.Context, conn *sql.DB, username, password string) error {
	var id int64
	err := conn.QueryRowContext(ctx, "SELECT id FROM admin_users WHERE username = ?", username).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "INSERT INTO admin_users (username, password_hash) VALUES (?, ?)", username, hash)
	return err
}

// AdminByUsername looks up an admin account. Returns sql.ErrNoRows when the
// account does not exist.
func AdminByUsername(ctx context.Context, conn *sql.DB, username string) (*models.AdminUser, error) {
	var u models.AdminUser
	err := conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash FROM admin_users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
