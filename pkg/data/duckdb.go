package data

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id            VARCHAR PRIMARY KEY,
	title         VARCHAR,
	author        VARCHAR,
	total_pages   INTEGER,
	cover_image   VARCHAR,
	manifest_url  VARCHAR,
	status        VARCHAR,
	downloaded_at VARCHAR
);
`

// InitDuckDB opens the library database at path and ensures the schema.
func InitDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Repository stores library metadata for downloaded books. The cache stores
// hold the bytes; this holds what the list view needs without opening them.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the library database at path.
func NewRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// SaveBook inserts or replaces a book's metadata row.
func (r *Repository) SaveBook(book *Book) error {
	if book == nil {
		return fmt.Errorf("book cannot be nil")
	}
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO books
		 (id, title, author, total_pages, cover_image, manifest_url, status, downloaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.TotalPages,
		book.CoverImage, book.ManifestURL, book.Status, book.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

// GetBook returns the metadata row for id, or nil if absent.
func (r *Repository) GetBook(id string) (*Book, error) {
	row := r.db.QueryRow(
		`SELECT id, title, author, total_pages, cover_image, manifest_url, status, downloaded_at
		 FROM books WHERE id = ?`, id)

	book := &Book{}
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.TotalPages,
		&book.CoverImage, &book.ManifestURL, &book.Status, &book.DownloadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns all books ordered by title.
func (r *Repository) ListBooks() ([]*Book, error) {
	rows, err := r.db.Query(
		`SELECT id, title, author, total_pages, cover_image, manifest_url, status, downloaded_at
		 FROM books ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book := &Book{}
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.TotalPages,
			&book.CoverImage, &book.ManifestURL, &book.Status, &book.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// DeleteBook removes a book's metadata row.
func (r *Repository) DeleteBook(id string) error {
	if _, err := r.db.Exec(`DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// SetStatus updates a book's status, stamping downloaded_at when it
// transitions to "offline".
func (r *Repository) SetStatus(id, status string) error {
	downloadedAt := ""
	if status == "offline" {
		downloadedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.db.Exec(
		`UPDATE books SET status = ?,
		 downloaded_at = CASE WHEN ? != '' THEN ? ELSE downloaded_at END
		 WHERE id = ?`,
		status, downloadedAt, downloadedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}
