// Copyright 2025 The IQC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// FSStore keeps files in a local directory
type FSStore struct {
	dir string
}

func (store *FSStore) path(name string) string {
	return filepath.Join(store.dir, name)
}

func (store *FSStore) Put(ctx context.Context, name string, src io.Reader) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	tmp, err := os.CreateTemp(store.dir, ".upload-*")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	hash := xxhash.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), store.path(name)); err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	st, err := os.Stat(store.path(name))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	return Entry{
		Name:        name,
		Size:        size,
		Fingerprint: hash.Sum64(),
		Modified:    st.ModTime(),
	}, nil
}

func (store *FSStore) entry(name string) (Entry, error) {
	f, err := os.Open(store.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)

	} else if err != nil {
		return Entry{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return Entry{}, err
	}
	hash := xxhash.New()
	if _, err := io.Copy(hash, f); err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:        name,
		Size:        st.Size(),
		Fingerprint: hash.Sum64(),
		Modified:    st.ModTime(),
	}, nil
}

func (store *FSStore) Get(ctx context.Context, name string) (io.ReadCloser, Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, Entry{}, err
	}
	entry, err := store.entry(name)
	if err != nil {
		return nil, entry, fmt.Errorf("failed to get archived file: %w", err)
	}
	f, err := os.Open(store.path(name))
	if err != nil {
		return nil, entry, fmt.Errorf("failed to get archived file: %w", err)
	}
	return f, entry, nil
}

func (store *FSStore) List(ctx context.Context) ([]Entry, error) {
	items, err := os.ReadDir(store.dir)
	if err != nil {
		return []Entry{}, fmt.Errorf("failed to list archive: %w", err)
	}
	ans := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		entry, err := store.entry(item.Name())
		if err != nil {
			log.Warn().Err(err).Str("file", item.Name()).Msg("skipping unreadable archive file")
			continue
		}
		ans = append(ans, entry)
	}
	slices.SortFunc(ans, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ans, nil
}

func (store *FSStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(store.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, ErrNotFound)

	} else if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}
