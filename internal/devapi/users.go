package devapi

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func createUser(db *sql.DB, username, email, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`, username, email, hash, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Username: username, Email: email}, nil
}

func authenticate(db *sql.DB, username, password string) (*User, error) {
	var user User
	var hash string
	err := db.QueryRow(`
		SELECT id, username, email, password_hash
		FROM users
		WHERE username = ?`, username).Scan(&user.ID, &user.Username, &user.Email, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !checkPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func getUserByID(db *sql.DB, id int64) (*User, error) {
	var user User
	err := db.QueryRow("SELECT id, username, email FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// validateRegistration returns per-field messages, or nil when c is valid.
func validateRegistration(c credentials) map[string][]string {
	errs := make(map[string][]string)
	if strings.TrimSpace(c.Username) == "" {
		errs["username"] = append(errs["username"], "This field may not be blank.")
	}
	if strings.TrimSpace(c.Email) == "" {
		errs["email"] = append(errs["email"], "This field may not be blank.")
	} else if !strings.Contains(c.Email, "@") {
		errs["email"] = append(errs["email"], "Enter a valid email address.")
	}
	if c.Password == "" {
		errs["password"] = append(errs["password"], "This field may not be blank.")
	} else if len(c.Password) < 8 {
		errs["password"] = append(errs["password"], "This password is too short. It must contain at least 8 characters.")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
