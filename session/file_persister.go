package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FilePersister stores the pair as an encoded blob in a single file.
type FilePersister struct {
	fs     afero.Fs
	path   string
	portal string
	now    func() time.Time
}

// NewFilePersister returns a persister writing to path on fs. A nil fs uses the OS
// filesystem.
func NewFilePersister(fs afero.Fs, path, portal string) (*FilePersister, error) {
	if path == "" {
		return nil, errors.New("file path required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FilePersister{fs: fs, path: path, portal: portal, now: time.Now}, nil
}

// Load decodes the blob; a missing file is an empty slot.
func (f *FilePersister) Load(context.Context) (Pair, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, nil
		}
		return Pair{}, err
	}
	b, err := Decode(data)
	if err != nil {
		return Pair{}, err
	}
	return b.Pair, nil
}

// Save writes to a temporary file and renames it over the target.
func (f *FilePersister) Save(_ context.Context, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	data, err := Encode(Blob{
		Pair:                 p,
		ExpiresAtEpochMillis: decodeExpiry(p.AccessToken),
		SavedAtEpochMillis:   f.now().UnixMilli(),
		Portal:               f.portal,
	})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return err
	}
	return f.fs.Rename(tmp, f.path)
}

// Clear removes the file.
func (f *FilePersister) Clear(context.Context) error {
	err := f.fs.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
