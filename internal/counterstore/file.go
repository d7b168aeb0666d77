package counterstore

import (
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/healthd/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// FileStore keeps one file per key in a directory, typically on a
// persist partition.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errors.New().Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "create_directory",
			Error: err.Error(),
		})
	}

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.New().WithData(ErrInvalidKey, key)
	}

	return filepath.Join(s.dir, key), nil
}

func (s *FileStore) Load(key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New().Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: "read",
			Key:   key,
			Error: err.Error(),
		})
	}

	return data, true, nil
}

// Store writes to a temporary file in the same directory, syncs it and
// renames it over the previous value.
func (s *FileStore) Store(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	fail := func(phase string, err error) error {
		return errors.New().Wrap(ErrStoreUnavailable, err).WithData(phaseError{
			Phase: phase,
			Key:   key,
			Error: err.Error(),
		})
	}

	tmpFile, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return fail("create_temp", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(value); err != nil {
		_ = tmpFile.Close()
		return fail("write_temp", err)
	}
	if err := tmpFile.Chmod(defaultFilePerm); err != nil {
		_ = tmpFile.Close()
		return fail("chmod_temp", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fail("sync_temp", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fail("close_temp", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail("rename", err)
	}
	tmpPath = ""

	return nil
}

func (*FileStore) Close() error {
	return nil
}
