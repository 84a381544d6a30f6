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

// Package archive keeps raw uploaded dataset files so they can be
// downloaded and re-processed later.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrNotFound    = errors.New("dataset file not found")
	ErrInvalidName = errors.New("invalid dataset file name")
)

// Entry describes an archived file
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`

	// Fingerprint is the xxhash64 digest of the file content.
	// Zero means the value is not known.
	Fingerprint uint64    `json:"fingerprint"`
	Modified    time.Time `json:"modified"`
}

func (e Entry) FingerprintHex() string {
	return FormatFingerprint(e.Fingerprint)
}

type Store interface {

	// Put stores the content under the name. An existing file
	// of the same name is replaced.
	Put(ctx context.Context, name string, src io.Reader) (Entry, error)

	Get(ctx context.Context, name string) (io.ReadCloser, Entry, error)

	// List returns all the entries sorted by name
	List(ctx context.Context) ([]Entry, error)

	Delete(ctx context.Context, name string) error
}

func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

func FormatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

func ParseFingerprint(v string) (uint64, error) {
	return strconv.ParseUint(v, 16, 64)
}

// ValidateName accepts plain file names only
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
