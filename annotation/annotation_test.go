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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillStore(t *testing.T, store Store) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []Annotation{
		{Dataset: "plate-01", ResultID: "Verapamil[0,1,2,3]", Save: false, Curator: "jdoe", Created: t0},
		{Dataset: "plate-01", ResultID: "Verapamil[0,1,3,4]", Save: true, Curator: "jdoe", Created: t0.Add(time.Minute)},
		{Dataset: "plate-01", ResultID: "Diclofenac[0,1,2]", Save: true, Curator: "asmith", Created: t0.Add(2 * time.Minute)},
		{Dataset: "plate-02", ResultID: "Verapamil[1,2,3]", Save: true, Curator: "asmith", Created: t0.Add(3 * time.Minute)},
		{Dataset: "other", ResultID: "X[0,1,2]", Save: false, Curator: "jdoe", Created: t0.Add(4 * time.Minute), Comments: "noisy"},
	}
	for _, item := range items {
		ann, err := store.Add(context.Background(), item)
		require.NoError(t, err)
		assert.NotZero(t, ann.ID)
	}
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()
	fillStore(t, store)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "X[0,1,2]", all[0].ResultID)
	assert.Equal(t, "noisy", all[0].Comments)

	ds, err := store.ListDataset(ctx, "plate-01")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "Diclofenac[0,1,2]", ds[0].ResultID)
	assert.Equal(t, "Verapamil[0,1,3,4]", ds[1].ResultID)
	assert.True(t, ds[1].Save)
	assert.Equal(t, "jdoe", ds[1].Curator)

	pref, err := store.ListPrefix(ctx, "plate-")
	require.NoError(t, err)
	assert.Len(t, pref, 4)

	st, err := Lookup(ctx, store, "plate-01", "Verapamil[0,1,3,4]")
	require.NoError(t, err)
	assert.True(t, st.Annotated)
	assert.True(t, st.Save)

	st, err = Lookup(ctx, store, "plate-01", "Verapamil[0,1,2,3]")
	require.NoError(t, err)
	assert.False(t, st.Annotated)

	st, err = Lookup(ctx, store, "plate-03", "Verapamil[0,1,3,4]")
	require.NoError(t, err)
	assert.False(t, st.Annotated)

	require.NoError(t, store.Delete(ctx, ds[1].ID))
	ds, err = store.ListDataset(ctx, "plate-01")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "Verapamil[0,1,2,3]", ds[1].ResultID)

	err = store.Delete(ctx, 10000)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "annotations.sqlite"))
	require.NoError(t, err)
	testStore(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.sqlite")
	store, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	fillStore(t, store)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()
	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 4, 0, 0, time.UTC).UnixMilli(), all[0].Created.UnixMilli())
}

func TestLatestPerSample(t *testing.T) {
	anns := []Annotation{
		{ID: 3, ResultID: "A[0,1,2]"},
		{ID: 2, ResultID: "B[0,1,2]"},
		{ID: 1, ResultID: "A[1,2,3]"},
		{ID: 0, ResultID: "garbage"},
	}
	ans := LatestPerSample(anns)
	require.Len(t, ans, 3)
	assert.Equal(t, int64(3), ans[0].ID)
	assert.Equal(t, int64(2), ans[1].ID)
	assert.Equal(t, "garbage", ans[2].SampleName())
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), Conf{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	_, err = Open(context.Background(), Conf{Driver: "redis"})
	assert.Error(t, err)
	assert.Error(t, Conf{Driver: DriverSQLite}.Validate())
	assert.NoError(t, Conf{Driver: DriverSQLite, Path: "x.db"}.Validate())
}
