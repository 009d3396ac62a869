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

// Package counter provides k-mer abundance lookups backed by precomputed
// k-mer count files.
package counter

import (
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/shenwei356/PanKmer/pankmer/cmd/histogram"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kff"
	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/shenwei356/kmers"
)

// ErrSource means the k-mer count file is missing, unreadable or invalid.
var ErrSource = errors.New("k-mer counter: invalid source")

// ErrSizeMismatch means the given k-mer size differs from the one of the source.
var ErrSizeMismatch = errors.New("k-mer counter: k-mer size mismatch")

// ErrNonCanonical means the source is not produced with canonical k-mers.
var ErrNonCanonical = errors.New("k-mer counter: k-mers are not canonical")

// ErrNoPeak means no peak is found in the k-mer count histogram.
var ErrNoPeak = histogram.ErrNoPeak

// ErrOutput means the histogram file can not be written.
var ErrOutput = histogram.ErrOutput

// ErrZeroGenomeKmers means the number of genomic k-mers is 0.
var ErrZeroGenomeKmers = errors.New("k-mer counter: the number of genomic k-mers should be > 0")

// KmerCounter provides abundance lookups of k-mers and statistics
// of their counts.
type KmerCounter interface {
	// K returns the k-mer size.
	K() int

	// Abundance returns the count of a k-mer, checking the k-mer itself
	// first and then its canonical form. Absent k-mers have a count of 0.
	Abundance(kmer string) (uint64, error)

	// AbundanceCode is the same as Abundance, for a 2-bit encoded k-mer.
	AbundanceCode(code uint64) (uint64, error)

	// Coverage returns ceil(sum(count) / genomeKmers).
	Coverage(genomeKmers uint64) (uint64, error)

	// HistogramPeak returns the abundance of the largest (or the second
	// largest) peak of the k-mer count histogram in [1, maxCount].
	// The histogram is written to outFile if it is not empty.
	HistogramPeak(maxCount int, largestPeak bool, outFile string) (uint64, error)

	// Populate loads all k-mers and counts into memory, only once.
	Populate() error

	// NumKmers returns the number of distinct k-mers.
	NumKmers() (int, error)

	// Walk calls f for each k-mer, it stops when f returns true.
	Walk(f func(kmer string, count uint64) (stop bool)) error
}

// Open creates a KmerCounter according to the file extension:
// ".kff" (optionally gzipped) for CompactCounter, others for AssociativeCounter.
func Open(file string, k int) (KmerCounter, error) {
	if IsCompactFile(file) {
		return NewCompactCounter(file, k)
	}
	return NewAssociativeCounter(file, k)
}

// IsCompactFile tells if a file is a compact k-mer count file.
func IsCompactFile(file string) bool {
	file = strings.ToLower(file)
	file = strings.TrimSuffix(file, ".gz")
	return filepath.Ext(file) == kff.FileExt
}

// counter implements the operations shared by the backends.
type counter struct {
	file  string
	k     int
	cache Cache
	load  func(m map[string]uint64) error
}

func (c *counter) K() int {
	return c.k
}

func (c *counter) Populate() error {
	err := c.cache.Populate(c.load)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSource, c.file, err)
	}
	return nil
}

func (c *counter) Abundance(kmer string) (uint64, error) {
	if err := c.Populate(); err != nil {
		return 0, err
	}
	return c.cache.Lookup(kmer), nil
}

func (c *counter) AbundanceCode(code uint64) (uint64, error) {
	if err := c.Populate(); err != nil {
		return 0, err
	}
	code = util.Canonical(code, uint8(c.k))
	return c.cache.Get(string(kmers.MustDecode(code, c.k))), nil
}

func (c *counter) NumKmers() (int, error) {
	if err := c.Populate(); err != nil {
		return 0, err
	}
	return c.cache.Len(), nil
}

func (c *counter) Walk(f func(kmer string, count uint64) bool) error {
	if err := c.Populate(); err != nil {
		return err
	}
	c.cache.Walk(f)
	return nil
}

func (c *counter) Coverage(genomeKmers uint64) (uint64, error) {
	if genomeKmers == 0 {
		return 0, ErrZeroGenomeKmers
	}
	if err := c.Populate(); err != nil {
		return 0, err
	}

	total := new(big.Int)
	var v big.Int
	c.cache.Walk(func(_ string, count uint64) bool {
		total.Add(total, v.SetUint64(count))
		return false
	})
	return ceilQuo(total, genomeKmers), nil
}

// ceilQuo returns ceil(a/b), saturated to the max uint64.
func ceilQuo(a *big.Int, b uint64) uint64 {
	q, r := new(big.Int).QuoRem(a, new(big.Int).SetUint64(b), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsUint64() {
		return ^uint64(0)
	}
	return q.Uint64()
}

func (c *counter) HistogramPeak(maxCount int, largestPeak bool, outFile string) (uint64, error) {
	if err := c.Populate(); err != nil {
		return 0, err
	}

	estimate, _, err := histogram.Estimate(func(add func(uint64)) error {
		c.cache.Walk(func(_ string, count uint64) bool {
			add(count)
			return false
		})
		return nil
	}, maxCount, largestPeak, outFile)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", c.file, err)
	}
	return estimate, nil
}
