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

// Package graycode enumerates all binary inclusion vectors over
// a fixed number of slots in the reflected binary Gray code order,
// i.e. each two consecutive vectors differ in exactly one bit.
package graycode

import (
	"iter"
)

// MaxBits limits the enumerator width so that 2^n fits
// comfortably into an int counter.
const MaxBits = 30

// Enumerator is a pull-style finite sequence of 2^n vectors.
// It is not restartable - create a new one using New to iterate again.
type Enumerator struct {
	n    int
	next uint64
	end  uint64
	curr []int
}

// New creates an enumerator over n bits. Values outside
// [0, MaxBits] are clamped.
func New(n int) *Enumerator {
	n = max(0, min(n, MaxBits))
	return &Enumerator{
		n:    n,
		end:  uint64(1) << n,
		curr: make([]int, n),
	}
}

// Len returns the total number of vectors the enumerator produces.
func (e *Enumerator) Len() int {
	return int(e.end)
}

// Width returns the number of bits of each produced vector
func (e *Enumerator) Width() int {
	return e.n
}

// Next returns the next vector and true or nil and false
// if the sequence is exhausted. The returned slice is a fresh copy
// and the caller may keep it.
func (e *Enumerator) Next() ([]int, bool) {
	if e.next >= e.end {
		return nil, false
	}
	if e.next > 0 {
		// the bit flipped between g(i-1) and g(i) is the lowest set bit of i
		i := e.next
		pos := 0
		for i&1 == 0 {
			i >>= 1
			pos++
		}
		e.curr[pos] ^= 1
	}
	e.next++
	ans := make([]int, e.n)
	copy(ans, e.curr)
	return ans, true
}

// All provides the remaining vectors as a range-over-func sequence.
func (e *Enumerator) All() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		for {
			v, ok := e.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Code returns the i-th reflected Gray code as a bit vector of width n
// (bit j of the code is stored at index j).
func Code(i uint64, n int) []int {
	g := i ^ (i >> 1)
	ans := make([]int, n)
	for j := 0; j < n; j++ {
		ans[j] = int((g >> j) & 1)
	}
	return ans
}

// Count returns the number of included (non-zero) slots.
func Count(vec []int) int {
	var c int
	for _, v := range vec {
		if v > 0 {
			c++
		}
	}
	return c
}
