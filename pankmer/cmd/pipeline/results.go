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

package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// UniqueKmersMap stores unique k-mers of each chromosome, each
// chromosome is inserted once.
type UniqueKmersMap struct {
	mu       sync.Mutex
	kmers    map[string][]UniqueKmers
	runtimes map[string]time.Duration
}

// NewUniqueKmersMap creates an empty UniqueKmersMap.
func NewUniqueKmersMap() *UniqueKmersMap {
	return &UniqueKmersMap{
		kmers:    make(map[string][]UniqueKmers, 32),
		runtimes: make(map[string]time.Duration, 32),
	}
}

// Insert stores unique k-mers of a chromosome and the time spent.
func (m *UniqueKmersMap) Insert(chrom string, kmers []UniqueKmers, elapsed time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kmers[chrom]; ok {
		return fmt.Errorf("unique k-mers of chromosome %s inserted twice", chrom)
	}
	m.kmers[chrom] = kmers
	m.runtimes[chrom] = elapsed
	return nil
}

// Get returns unique k-mers of a chromosome.
func (m *UniqueKmersMap) Get(chrom string) ([]UniqueKmers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kmers, ok := m.kmers[chrom]
	return kmers, ok
}

// Runtime returns the time spent on a chromosome.
func (m *UniqueKmersMap) Runtime(chrom string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtimes[chrom]
}

// Chromosomes returns sorted chromosome names.
func (m *UniqueKmersMap) Chromosomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.kmers)
}

// Release frees all unique k-mers.
func (m *UniqueKmersMap) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kmers := range m.kmers {
		for _, u := range kmers {
			if r, ok := u.(Releaser); ok {
				r.Release()
			}
		}
	}
	clear(m.kmers)
}

// Results stores genotyping results of each chromosome.
// Results of the same chromosome from different tasks are combined.
type Results struct {
	mu       sync.Mutex
	results  map[string][]GenotypingResult
	runtimes map[string]time.Duration
}

// NewResults creates an empty Results.
func NewResults() *Results {
	return &Results{
		results:  make(map[string][]GenotypingResult, 32),
		runtimes: make(map[string]time.Duration, 32),
	}
}

// Merge adds results of a chromosome from one task. The first results
// are stored as they are, later ones are combined site by site. All results
// of the chromosome are normalized afterwards. Time spent is accumulated.
func (r *Results) Merge(chrom string, records []GenotypingResult, elapsed time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.results[chrom]
	if !ok {
		existing = records
		r.results[chrom] = records
	} else {
		if len(existing) != len(records) {
			return fmt.Errorf("chromosome %s: number of results mismatch: %d != %d",
				chrom, len(records), len(existing))
		}
		for i, rec := range records {
			if err := existing[i].Combine(rec); err != nil {
				return errors.Wrapf(err, "chromosome %s, site #%d", chrom, i+1)
			}
		}
	}

	for _, rec := range existing {
		rec.Normalize()
	}
	r.runtimes[chrom] += elapsed
	return nil
}

// Get returns results of a chromosome.
func (r *Results) Get(chrom string) ([]GenotypingResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records, ok := r.results[chrom]
	return records, ok
}

// Runtime returns the accumulated time spent on a chromosome.
func (r *Results) Runtime(chrom string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runtimes[chrom]
}

// Chromosomes returns sorted chromosome names.
func (r *Results) Chromosomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.results)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// GenotypeLikelihoods is a GenotypingResult storing likelihoods of all
// genotypes of a site. Likelihoods of independent path subsets are
// combined by multiplication, so the normalized result does not depend
// on the order of merging.
type GenotypeLikelihoods struct {
	Values []float64
}

// NewGenotypeLikelihoods creates a GenotypeLikelihoods.
func NewGenotypeLikelihoods(values ...float64) *GenotypeLikelihoods {
	return &GenotypeLikelihoods{Values: values}
}

// Combine multiplies likelihoods of the same genotypes.
func (g *GenotypeLikelihoods) Combine(other GenotypingResult) error {
	o, ok := other.(*GenotypeLikelihoods)
	if !ok {
		return fmt.Errorf("unsupported genotyping result type: %T", other)
	}
	if len(o.Values) != len(g.Values) {
		return fmt.Errorf("number of genotypes mismatch: %d != %d", len(o.Values), len(g.Values))
	}
	floats.Mul(g.Values, o.Values)
	return nil
}

// Normalize scales likelihoods to sum up to 1. All-zero likelihoods
// are left untouched.
func (g *GenotypeLikelihoods) Normalize() {
	sum := floats.Sum(g.Values)
	if sum > 0 {
		floats.Scale(1/sum, g.Values)
	}
}

// MaxGenotype returns the index of the most likely genotype and its likelihood.
func (g *GenotypeLikelihoods) MaxGenotype() (int, float64) {
	if len(g.Values) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(g.Values)
	return i, g.Values[i]
}
