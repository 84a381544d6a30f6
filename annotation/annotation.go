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

// Package annotation stores curator decisions about computed results.
// An annotation links a dataset and a result ID (see estimator.Result.ID)
// with an approve/reject flag and the identity of the curator.
package annotation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/caodac/iqc/estimator"
)

var ErrNotFound = errors.New("annotation not found")

type Annotation struct {
	ID       int64     `json:"id"`
	Dataset  string    `json:"dataset"`
	ResultID string    `json:"resultId"`
	Save     bool      `json:"save"`
	Curator  string    `json:"curator"`
	Comments string    `json:"comments,omitempty"`
	Created  time.Time `json:"created"`
}

// SampleName extracts the sample name from the result ID.
// In case the ID is not parseable, the whole ID is returned.
func (ann Annotation) SampleName() string {
	name, _, err := estimator.ParseID(ann.ResultID)
	if err != nil {
		return ann.ResultID
	}
	return name
}

// State describes the curation status of a single result
type State struct {
	Annotated bool      `json:"annotated"`
	Save      bool      `json:"save"`
	Curator   string    `json:"curator,omitempty"`
	Created   time.Time `json:"created,omitempty"`
}

type Store interface {

	// Add stores a new annotation and returns it with ID
	// (and creation time, if missing) filled in.
	Add(ctx context.Context, ann Annotation) (Annotation, error)

	Delete(ctx context.Context, id int64) error

	// ListDataset returns the latest annotation of each sample
	// of the dataset, newest first.
	ListDataset(ctx context.Context, dataset string) ([]Annotation, error)

	// ListPrefix returns all annotations of datasets
	// starting with the prefix, newest first.
	ListPrefix(ctx context.Context, prefix string) ([]Annotation, error)

	ListAll(ctx context.Context) ([]Annotation, error)

	Close() error
}

// SortNewestFirst sorts annotations by creation time (and ID for equal times)
// in descending order.
func SortNewestFirst(anns []Annotation) {
	sort.SliceStable(anns, func(i, j int) bool {
		if anns[i].Created.Equal(anns[j].Created) {
			return anns[i].ID > anns[j].ID
		}
		return anns[i].Created.After(anns[j].Created)
	})
}

// LatestPerSample keeps only the first annotation for each sample name.
// The input is expected to be sorted newest first.
func LatestPerSample(anns []Annotation) []Annotation {
	seen := make(map[string]struct{})
	ans := make([]Annotation, 0, len(anns))
	for _, ann := range anns {
		name := ann.SampleName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		ans = append(ans, ann)
	}
	return ans
}

// Lookup determines the curation state of a result within a dataset.
// Only the latest annotation of a sample counts, so a result whose sample
// was later annotated with a different configuration is reported
// as not annotated.
func Lookup(ctx context.Context, store Store, dataset, resultID string) (State, error) {
	anns, err := store.ListDataset(ctx, dataset)
	if err != nil {
		return State{}, err
	}
	for _, ann := range anns {
		if ann.ResultID == resultID {
			return State{
				Annotated: true,
				Save:      ann.Save,
				Curator:   ann.Curator,
				Created:   ann.Created,
			}, nil
		}
	}
	return State{}, nil
}
