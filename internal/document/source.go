package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// ByteSource supplies the raw bytes of a document. Export re-fetches through
// it, so implementations must be safe to call more than once.
type ByteSource interface {
	Bytes(ctx context.Context) ([]byte, error)
	Name() string
}

// FileSource reads a document from disk.
type FileSource struct {
	Path string
}

// NewFileSource validates path and returns a source for it.
func NewFileSource(path string) (*FileSource, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return &FileSource{Path: path}, nil
}

// Bytes reads the whole file.
func (s *FileSource) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("read %s", s.Path), err)
	}
	return data, nil
}

// Name returns the file's base name.
func (s *FileSource) Name() string {
	return filepath.Base(s.Path)
}

// MemorySource serves bytes already held in memory.
type MemorySource struct {
	Filename string
	Data     []byte
}

// Bytes returns a copy of the held data.
func (s *MemorySource) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.Data...), nil
}

// Name returns the filename.
func (s *MemorySource) Name() string {
	return s.Filename
}

// ValidatePath checks that path names a readable regular file.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	return nil
}

// ValidateBytes checks for the PDF header within the first KiB, which is
// where readers are required to look for it.
func ValidateBytes(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("document is empty", nil)
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !strings.Contains(string(head), "%PDF-") {
		return domain.ValidationError("document is not a PDF (missing %PDF- header)", nil)
	}
	return nil
}
