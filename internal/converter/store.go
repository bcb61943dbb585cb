package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const docxPrefix = "doc_"

// TempStore holds converted documents until they are downloaded once.
type TempStore struct {
	Dir string
}

func NewTempStore(dir string) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempStore{Dir: dir}, nil
}

// Create opens a new uniquely named .docx file for writing.
func (s *TempStore) Create() (*os.File, error) {
	name := docxPrefix + uuid.NewString() + ".docx"
	return os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

func (s *TempStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrFileNotFound
	}
	return filepath.Join(s.Dir, name), nil
}

// Open returns the stored file. Only bare file names are accepted.
func (s *TempStore) Open(name string) (*os.File, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrFileNotFound
	}
	return f, nil
}

func (s *TempStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
