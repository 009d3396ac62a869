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

	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/kmers"
)

// AssociativeCounter serves lookups from a k-mer database (.kdb)
// of canonical k-mers. All k-mers are loaded at construction.
type AssociativeCounter struct {
	counter
}

// NewAssociativeCounter opens a k-mer database and loads all k-mers.
// The database must have the same k-mer size and store canonical k-mers.
func NewAssociativeCounter(file string, k int) (*AssociativeCounter, error) {
	rdr, err := kmerdb.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSource, file, err)
	}
	defer rdr.Close()

	if rdr.K() != k {
		return nil, fmt.Errorf("%w: given k-mer size (%d) does not match the one of %s (%d)",
			ErrSizeMismatch, k, file, rdr.K())
	}
	if !rdr.Canonical {
		return nil, fmt.Errorf("%w: %s, please count k-mers of both strands", ErrNonCanonical, file)
	}
	if rdr.Format != kmerdb.FormatSorted {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrSource, file, kmerdb.ErrUnsupportedFormat, rdr.Format)
	}

	c := &AssociativeCounter{
		counter: counter{file: file, k: k},
	}
	c.load = func(m map[string]uint64) error {
		return rdr.Walk(func(code, count uint64) bool {
			m[string(kmers.MustDecode(code, k))] = count
			return false
		})
	}

	err = c.Populate()
	if err != nil {
		return nil, err
	}
	c.load = nil // the reader is closed
	return c, nil
}
