package devapi

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenDB opens the backend database at path and makes sure the schema exists.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := initDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return db, nil
}

func initDB(db *sql.DB) error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);`

	_, err := db.Exec(schema)
	return err
}

// Seed creates a demo user with a few posts when the database is empty.
func Seed(db *sql.DB, username, password string) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	user, err := createUser(db, username, username+"@example.com", password)
	if err != nil {
		return fmt.Errorf("seeding user: %w", err)
	}

	posts := []PostInput{
		{Title: "Hey now", Content: "Everything is awesome!"},
		{Title: "What's the deal?", Content: "What is happening?!"},
		{Title: "Football", Content: "Niners and stuff."},
	}
	for _, p := range posts {
		if _, err := createPost(db, user.ID, p); err != nil {
			return fmt.Errorf("seeding posts: %w", err)
		}
	}
	return nil
}
