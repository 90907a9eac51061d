package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/logx"
)

const (
	sessionDirName  = "stompchat"
	sessionFileName = "session.yaml"
	sessionFileMode = 0o600
	sessionDirMode  = 0o700
)

// DefaultSessionPath returns the session file under the user's config directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errs.Wrap(errs.ErrStorageFailed, err, "no user config directory")
	}
	return filepath.Join(dir, sessionDirName, sessionFileName), nil
}

// fileStore implements SessionStore on a single YAML file.
type fileStore struct {
	path   string
	now    func() time.Time
	logger zerolog.Logger
}

func newFileStore(path string) *fileStore {
	return &fileStore{
		path:   path,
		now:    time.Now,
		logger: logx.Component("storage"),
	}
}

func (f *fileStore) Path() string {
	return f.path
}

func (f *fileStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NewError(errs.ErrSessionNotFound)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageFailed, err, "read "+f.path)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errs.Wrap(errs.ErrStorageFailed, err, "parse "+f.path)
	}
	if s.Handle == "" || s.Tokens.AccessToken == "" {
		return nil, errs.NewError(errs.ErrSessionNotFound)
	}
	return &s, nil
}

// Save writes to a temporary file in the same directory and renames it into place,
// so a crash never leaves a truncated session behind.
func (f *fileStore) Save(s Session) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = f.now().UTC()
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return errs.Wrap(errs.ErrStorageFailed, err, "encode session")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, sessionDirMode); err != nil {
		return errs.Wrap(errs.ErrStorageFailed, err, "create "+dir)
	}

	tmp, err := os.CreateTemp(dir, sessionFileName+".*")
	if err != nil {
		return errs.Wrap(errs.ErrStorageFailed, err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.ErrStorageFailed, err, "write session")
	}
	if err := tmp.Chmod(sessionFileMode); err != nil {
		tmp.Close()
		return errs.Wrap(errs.ErrStorageFailed, err, "chmod session")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.ErrStorageFailed, err, "close session")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errs.Wrap(errs.ErrStorageFailed, err, "replace "+f.path)
	}

	f.logger.Debug().Str("path", f.path).Str("handle", s.Handle).Msg("Session saved")
	return nil
}

func (f *fileStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.ErrStorageFailed, err, "remove "+f.path)
	}
	return nil
}
