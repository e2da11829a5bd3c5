package devapi

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func issueToken(db *sql.DB, userID int64, kind string, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating %s token: %w", kind, err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = db.Exec(`
		INSERT INTO tokens (token, user_id, kind, expires_at)
		VALUES (?, ?, ?, ?)`, token, userID, kind, expiresAt)
	if err != nil {
		return "", fmt.Errorf("inserting %s token: %w", kind, err)
	}
	return token, nil
}

// lookupToken returns the user id a live token of the given kind belongs to.
func lookupToken(db *sql.DB, token, kind string) (int64, error) {
	var userID int64
	err := db.QueryRow(`
		SELECT user_id
		FROM tokens
		WHERE token = ? AND kind = ? AND expires_at > ?`, token, kind, time.Now().Unix()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("looking up token: %w", err)
	}
	return userID, nil
}

// CleanupExpiredTokens deletes every token past its expiry.
func CleanupExpiredTokens(db *sql.DB) (int64, error) {
	result, err := db.Exec("DELETE FROM tokens WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired tokens: %w", err)
	}
	return result.RowsAffected()
}
