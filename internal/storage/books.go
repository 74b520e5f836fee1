package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// ErrNotFound is returned when no book is stored under the requested id.
var ErrNotFound = errors.New("record not found")

// Book is the persisted document plus its viewport state.
type Book struct {
	ID         string
	Filename   string
	File       []byte
	PageNumber int
	Scale      float64
	Highlights domain.HighlightSet
	UpdatedAt  time.Time
}

// State returns the book's initial state for a viewer.
func (b *Book) State() domain.InitialState {
	return domain.InitialState{
		ViewportState: domain.ViewportState{
			PageNumber: b.PageNumber,
			Scale:      b.Scale,
			Highlights: b.Highlights,
		},
		Filename: b.Filename,
	}.Normalize()
}

// BookRepository handles book CRUD operations.
type BookRepository struct {
	db DB
}

// NewBookRepository creates a new book repository.
func NewBookRepository(db DB) *BookRepository {
	return &BookRepository{db: db}
}

// Put inserts or replaces a book.
func (r *BookRepository) Put(ctx context.Context, book *Book) error {
	highlights, err := encodeHighlights(book.Highlights)
	if err != nil {
		return err
	}
	book.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO books (id, filename, file, page_number, scale, highlights, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			filename = excluded.filename,
			file = excluded.file,
			page_number = excluded.page_number,
			scale = excluded.scale,
			highlights = excluded.highlights,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		book.ID, book.Filename, book.File, book.PageNumber, book.Scale, highlights, book.UpdatedAt,
	)
	return err
}

// Get retrieves a book including its file bytes.
func (r *BookRepository) Get(ctx context.Context, id string) (*Book, error) {
	query := `
		SELECT id, filename, file, page_number, scale, highlights, updated_at
		FROM books WHERE id = $1
	`
	book := &Book{}
	var highlights string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&book.ID, &book.Filename, &book.File, &book.PageNumber, &book.Scale, &highlights, &book.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if book.Highlights, err = decodeHighlights(highlights); err != nil {
		return nil, err
	}
	return book, nil
}

// GetState retrieves a book's state without loading the file.
func (r *BookRepository) GetState(ctx context.Context, id string) (domain.InitialState, error) {
	query := `
		SELECT filename, page_number, scale, highlights
		FROM books WHERE id = $1
	`
	book := &Book{ID: id}
	var highlights string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&book.Filename, &book.PageNumber, &book.Scale, &highlights)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InitialState{}, ErrNotFound
	}
	if err != nil {
		return domain.InitialState{}, err
	}
	if book.Highlights, err = decodeHighlights(highlights); err != nil {
		return domain.InitialState{}, err
	}
	return book.State(), nil
}

// GetFile retrieves a book's bytes and filename.
func (r *BookRepository) GetFile(ctx context.Context, id string) ([]byte, string, error) {
	var (
		file     []byte
		filename string
	)
	err := r.db.QueryRowContext(ctx, `SELECT file, filename FROM books WHERE id = $1`, id).Scan(&file, &filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	return file, filename, err
}

// UpdateState writes the viewport state of an existing book. It reports
// false, without creating anything, when the book is absent.
func (r *BookRepository) UpdateState(ctx context.Context, id string, state domain.ViewportState) (bool, error) {
	highlights, err := encodeHighlights(state.Highlights)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE books SET page_number = $1, scale = $2, highlights = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, state.PageNumber, state.Scale, highlights, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a book.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	return err
}

func encodeHighlights(set domain.HighlightSet) (string, error) {
	if set == nil {
		set = domain.HighlightSet{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encode highlights: %w", err)
	}
	return string(data), nil
}

func decodeHighlights(s string) (domain.HighlightSet, error) {
	set := domain.HighlightSet{}
	if s == "" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(s), &set); err != nil {
		return nil, fmt.Errorf("decode highlights: %w", err)
	}
	return set, nil
}
