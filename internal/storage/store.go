package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
)

// Store is the persistence collaborator for one book slot.
type Store struct {
	handle *Handle
	bookID string
	logger *observability.Logger
}

// NewStore binds a store to bookID.
func NewStore(handle *Handle, bookID string, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{handle: handle, bookID: bookID, logger: logger.WithOperation("store").With().Str("book", bookID).Logger()}
}

// BookID returns the slot this store serves.
func (s *Store) BookID() string { return s.bookID }

// Import stores a new document with a fresh state.
func (s *Store) Import(ctx context.Context, filename string, data []byte) error {
	if err := document.ValidateBytes(data); err != nil {
		return err
	}
	err := s.handle.With(ctx, func(db DB) error {
		return NewBookRepository(db).Put(ctx, &Book{
			ID:         s.bookID,
			Filename:   filename,
			File:       data,
			PageNumber: 1,
			Scale:      domain.DefaultScale,
			Highlights: domain.HighlightSet{},
		})
	})
	if err != nil {
		return domain.StorageError("import book", err)
	}
	s.logger.Info().Str("filename", filename).Int("bytes", len(data)).Msg("book imported")
	return nil
}

// Load returns the stored state. ok is false when no book is stored.
func (s *Store) Load(ctx context.Context) (state domain.InitialState, ok bool, err error) {
	err = s.handle.With(ctx, func(db DB) error {
		var gerr error
		state, gerr = NewBookRepository(db).GetState(ctx, s.bookID)
		return gerr
	})
	if errors.Is(err, ErrNotFound) {
		return domain.InitialState{}, false, nil
	}
	if err != nil {
		return domain.InitialState{}, false, domain.StorageError("load state", err)
	}
	return state, true, nil
}

// Save writes state if a book is stored; otherwise it does nothing.
func (s *Store) Save(ctx context.Context, state domain.ViewportState) error {
	var updated bool
	err := s.handle.With(ctx, func(db DB) error {
		var uerr error
		updated, uerr = NewBookRepository(db).UpdateState(ctx, s.bookID, state)
		return uerr
	})
	if err != nil {
		return domain.StorageError("save state", err)
	}
	if !updated {
		s.logger.Debug().Msg("no stored book, state not saved")
		return nil
	}
	s.logger.Debug().
		Int("page", state.PageNumber).
		Float64("scale", state.Scale).
		Int("highlights", state.Highlights.Count()).
		Msg("state saved")
	return nil
}

// Clear removes the stored book.
func (s *Store) Clear(ctx context.Context) error {
	err := s.handle.With(ctx, func(db DB) error {
		return NewBookRepository(db).Delete(ctx, s.bookID)
	})
	if err != nil {
		return domain.StorageError("clear book", err)
	}
	return nil
}

// Source returns a byte source that re-reads the stored file on every call.
func (s *Store) Source(filename string) document.ByteSource {
	return &bookSource{store: s, filename: filename}
}

type bookSource struct {
	store    *Store
	filename string
}

func (b *bookSource) Bytes(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.store.handle.With(ctx, func(db DB) error {
		var gerr error
		data, _, gerr = NewBookRepository(db).GetFile(ctx, b.store.bookID)
		return gerr
	})
	if err != nil {
		return nil, domain.StorageError(fmt.Sprintf("read book %s", b.store.bookID), err)
	}
	return data, nil
}

func (b *bookSource) Name() string { return b.filename }
