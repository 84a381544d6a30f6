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

package annotation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a non-persistent Store mostly for testing
// and for one-shot CLI sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	data   []Annotation
	nextID int64
}

func (ms *MemoryStore) Add(ctx context.Context, ann Annotation) (Annotation, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.nextID++
	ann.ID = ms.nextID
	if ann.Created.IsZero() {
		ann.Created = time.Now()
	}
	ms.data = append(ms.data, ann)
	return ann, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, id int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, ann := range ms.data {
		if ann.ID == id {
			ms.data = append(ms.data[:i], ms.data[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("failed to delete annotation %d: %w", id, ErrNotFound)
}

func (ms *MemoryStore) filter(fn func(ann Annotation) bool) []Annotation {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ans := make([]Annotation, 0, len(ms.data))
	for _, ann := range ms.data {
		if fn(ann) {
			ans = append(ans, ann)
		}
	}
	SortNewestFirst(ans)
	return ans
}

func (ms *MemoryStore) ListDataset(ctx context.Context, dataset string) ([]Annotation, error) {
	return LatestPerSample(ms.filter(func(ann Annotation) bool {
		return ann.Dataset == dataset
	})), nil
}

func (ms *MemoryStore) ListPrefix(ctx context.Context, prefix string) ([]Annotation, error) {
	return ms.filter(func(ann Annotation) bool {
		return strings.HasPrefix(ann.Dataset, prefix)
	}), nil
}

func (ms *MemoryStore) ListAll(ctx context.Context) ([]Annotation, error) {
	return ms.filter(func(ann Annotation) bool { return true }), nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}
