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
	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
)

// Model is the variant/graph model of a pangenome.
type Model interface {
	// Chromosomes returns the names of chromosomes.
	Chromosomes() []string

	// NumVariants returns the number of variant sites of a chromosome.
	NumVariants(chrom string) int

	// NumPaths returns the number of haplotype paths of the panel.
	NumPaths() int

	// UniqueKmers returns informative k-mers of each variant site of a chromosome.
	// Both counters are populated and safe for concurrent lookups.
	UniqueKmers(chrom string, genomic, reads counter.KmerCounter, probs ProbabilityTable, coverage uint64) ([]UniqueKmers, error)
}

// UniqueKmers holds the informative k-mers of one variant site.
type UniqueKmers interface {
	// Position returns the position of the variant site.
	Position() uint64

	// Size returns the number of unique k-mers.
	Size() int
}

// Releaser is implemented by UniqueKmers holding resources to free
// after the whole run.
type Releaser interface {
	Release()
}

// ProbabilityTable stores precomputed emission probabilities,
// it is only passed through.
type ProbabilityTable interface{}

// ProbabilityTableFunc creates a ProbabilityTable from the range of
// expected k-mer counts, the most likely count and a regularization constant.
type ProbabilityTableFunc func(minCount, maxCount, modeCount uint64, regularization float64) (ProbabilityTable, error)

// Mode tells a Genotyper what to compute.
type Mode struct {
	Genotyping bool
	Phasing    bool
}

// ModeGenotyping and ModePhasing are the modes of the two kinds of tasks.
var (
	ModeGenotyping = Mode{Genotyping: true}
	ModePhasing    = Mode{Phasing: true}
)

func (m Mode) String() string {
	switch {
	case m.Genotyping && m.Phasing:
		return "genotyping+phasing"
	case m.Genotyping:
		return "genotyping"
	case m.Phasing:
		return "phasing"
	}
	return "none"
}

// Genotyper computes genotype likelihoods of all variant sites of a
// chromosome, using only the given paths.
type Genotyper interface {
	Genotype(chrom string, kmers []UniqueKmers, probs ProbabilityTable, mode Mode,
		recombRate, effectiveN float64, paths []int) ([]GenotypingResult, error)
}

// GenotypingResult is the result of one variant site.
type GenotypingResult interface {
	// Combine merges likelihoods of another result of the same site.
	Combine(other GenotypingResult) error

	// Normalize scales likelihoods to sum up to 1.
	Normalize()
}

// Writer outputs the results, e.g., in VCF format.
type Writer interface {
	Write(results *Results, kmers *UniqueKmersMap) error
}
