package devapi

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const postColumns = `
	p.id, p.title, p.content, p.created_at, p.updated_at,
	u.id, u.username, u.email`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt,
		&p.Author.ID, &p.Author.Username, &p.Author.Email)
	return p, err
}

// listPosts returns posts newest first. A limit of 0 returns all of them.
func listPosts(db *sql.DB, limit, offset int) ([]Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC, p.id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func countPosts(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&n)
	return n, err
}

func getPost(db *sql.DB, id int64) (*Post, error) {
	row := db.QueryRow(`SELECT `+postColumns+`
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.id = ?`, id)

	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %d: %w", id, err)
	}
	return &post, nil
}

func createPost(db *sql.DB, authorID int64, in PostInput) (*Post, error) {
	now := time.Now().UTC()
	result, err := db.Exec(`
		INSERT INTO posts (title, content, author_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, in.Title, in.Content, authorID, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return getPost(db, id)
}

// updatePost rewrites a post owned by authorID.
func updatePost(db *sql.DB, id, authorID int64, in PostInput) (*Post, error) {
	if err := checkAuthor(db, id, authorID); err != nil {
		return nil, err
	}

	_, err := db.Exec(`
		UPDATE posts
		SET title = ?, content = ?, updated_at = ?
		WHERE id = ?`, in.Title, in.Content, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("updating post %d: %w", id, err)
	}
	return getPost(db, id)
}

// deletePost removes a post owned by authorID.
func deletePost(db *sql.DB, id, authorID int64) error {
	if err := checkAuthor(db, id, authorID); err != nil {
		return err
	}

	if _, err := db.Exec("DELETE FROM posts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting post %d: %w", id, err)
	}
	return nil
}

func checkAuthor(db *sql.DB, id, authorID int64) error {
	var owner int64
	err := db.QueryRow("SELECT author_id FROM posts WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking post %d author: %w", id, err)
	}
	if owner != authorID {
		return ErrForbidden
	}
	return nil
}
