// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package sampler selects subsets of haplotype paths.
package sampler

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/zeebo/wyhash"
)

// Seed of the hash function ordering the paths.
var Seed uint64 = 1

// MaxPhasingPaths is the maximum number of paths used for phasing.
const MaxPhasingPaths = 30

// Default subset sizes.
const (
	LargePanel        = 25 // panels with more paths are split
	DefaultSubsetSize = 14
)

// ErrNoPaths means the number of paths is < 1.
var ErrNoPaths = errors.New("sampler: the number of paths should be >= 1")

// ErrSubsetSize means the subset size is < 1.
var ErrSubsetSize = errors.New("sampler: the subset size should be >= 1")

// SubsetSize returns the default subset size for a panel:
// 14 if there are more than 25 paths, otherwise all paths.
func SubsetSize(total int) int {
	if total > LargePanel {
		return DefaultSubsetSize
	}
	return total
}

// Sampler selects paths in a fixed pseudo-random order, so neighbouring
// paths (e.g., two haplotypes of a sample) tend to go to different subsets.
// The order only depends on the number of paths.
type Sampler struct {
	total int
	order []int
}

// New creates a sampler for paths [0, total).
func New(total int) (*Sampler, error) {
	if total < 1 {
		return nil, ErrNoPaths
	}

	type idx2hash struct {
		idx  int
		hash uint64
	}
	hashes := make([]idx2hash, total)
	buf := make([]byte, 8)
	for i := range hashes {
		binary.BigEndian.PutUint64(buf, uint64(i))
		hashes[i] = idx2hash{idx: i, hash: wyhash.Hash(buf, Seed)}
	}
	sort.Slice(hashes, func(i, j int) bool {
		if hashes[i].hash == hashes[j].hash {
			return hashes[i].idx < hashes[j].idx
		}
		return hashes[i].hash < hashes[j].hash
	})

	order := make([]int, total)
	for i, h := range hashes {
		order[i] = h.idx
	}
	return &Sampler{total: total, order: order}, nil
}

// Total returns the number of paths.
func (s *Sampler) Total() int {
	return s.total
}

// Partition splits all paths into ceil(total/size) disjoint subsets,
// all of them have the given size except the last one. Sizes larger
// than the number of paths are treated as the number of paths.
// Indices in each subset are sorted.
func (s *Sampler) Partition(size int) ([][]int, error) {
	if size < 1 {
		return nil, ErrSubsetSize
	}
	if size > s.total {
		size = s.total
	}

	n := (s.total + size - 1) / size
	subsets := make([][]int, 0, n)
	var end int
	for start := 0; start < s.total; start += size {
		end = start + size
		if end > s.total {
			end = s.total
		}
		subsets = append(subsets, sortedCopy(s.order[start:end]))
	}
	return subsets, nil
}

// SelectSingleSubset returns min(n, total) paths. The subset may overlap
// with the ones returned by Partition.
func (s *Sampler) SelectSingleSubset(n int) []int {
	if n > s.total {
		n = s.total
	}
	if n < 0 {
		n = 0
	}
	return sortedCopy(s.order[:n])
}

// PhasingSubset returns at most MaxPhasingPaths paths for phasing.
func (s *Sampler) PhasingSubset() []int {
	return s.SelectSingleSubset(MaxPhasingPaths)
}

func sortedCopy(s []int) []int {
	c := make([]int, len(s))
	copy(c, s)
	sort.Ints(c)
	return c
}
