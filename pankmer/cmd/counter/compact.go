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

package counter

import (
	"fmt"
	"io"

	"github.com/shenwei356/PanKmer/pankmer/cmd/kff"
)

// CompactCounter serves lookups from a compact k-mer count file (.kff).
// K-mers are streamed into memory on the first lookup.
type CompactCounter struct {
	counter
}

// NewCompactCounter opens a compact k-mer count file and checks the
// k-mer size. K-mers are loaded lazily.
func NewCompactCounter(file string, k int) (*CompactCounter, error) {
	rdr, err := kff.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSource, file, err)
	}
	rdr.Close()

	_k, ok := rdr.Var(kff.VarK)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrSource, file, kff.ErrVarMissing, kff.VarK)
	}
	if int(_k) != k {
		return nil, fmt.Errorf("%w: given k-mer size (%d) does not match the one of %s (%d)",
			ErrSizeMismatch, k, file, _k)
	}

	c := &CompactCounter{
		counter: counter{file: file, k: k},
	}
	c.load = func(m map[string]uint64) error {
		return loadCompact(file, k, m)
	}
	return c, nil
}

func loadCompact(file string, k int, m map[string]uint64) error {
	rdr, err := kff.NewReader(file)
	if err != nil {
		return err
	}
	defer rdr.Close()

	var kmer []byte
	var count uint64
	for {
		kmer, _, count, err = rdr.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(kmer) != k {
			return fmt.Errorf("%w: k-mer size (%d) does not match %d", ErrSizeMismatch, len(kmer), k)
		}
		m[string(kmer)] = count
	}
}

// Repopulate discards the cached k-mers and reads the file again.
// It must not be called concurrently with lookups.
func (c *CompactCounter) Repopulate() error {
	c.cache.Reset()
	return c.Populate()
}
