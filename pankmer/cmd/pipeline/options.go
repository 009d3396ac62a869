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

// Package pipeline runs k-mer counting based genotyping of all chromosomes
// concurrently.
package pipeline

import (
	"fmt"
	"runtime"
)

// Options contains the parameters of a run.
type Options struct {
	KmerSize int // k-mer size
	Threads  int // the maximum number of goroutines

	Genotyping bool // run genotyping on each path subset
	Phasing    bool // run phasing on one path subset

	EffectiveN     float64 // effective population size
	Regularization float64 // regularization constant of the probability table
	RecombRate     float64 // recombination rate

	SamplingSize int // paths per subset, 0 for the default policy

	MaxCount      int    // the largest k-mer count of the histogram
	LargestPeak   bool   // use the largest histogram peak, or the second largest one
	HistogramFile string // file to save the histogram, optional

	Verbose bool // show log and progress bar
}

// DefaultOptions provides the default options.
var DefaultOptions = Options{
	KmerSize: 31,
	Threads:  runtime.NumCPU(),

	Genotyping: true,
	Phasing:    false,

	EffectiveN:     0.00001,
	Regularization: 0.001,
	RecombRate:     1.26,

	SamplingSize: 0,

	MaxCount:      10000,
	LargestPeak:   true, // true when only k-mers in the graph are counted
	HistogramFile: "",

	Verbose: false,
}

// CheckOptions checks the important options.
func CheckOptions(opt *Options) error {
	if opt.KmerSize < 1 || opt.KmerSize > 32 {
		return fmt.Errorf("invalid k-mer size: %d, valid range: [1, 32]", opt.KmerSize)
	}
	if opt.Threads < 1 {
		return fmt.Errorf("invalid number of threads: %d, should be >= 1", opt.Threads)
	}
	if !opt.Genotyping && !opt.Phasing {
		return fmt.Errorf("neither genotyping nor phasing is requested")
	}
	if opt.EffectiveN <= 0 {
		return fmt.Errorf("invalid effective population size: %f, should be > 0", opt.EffectiveN)
	}
	if opt.Regularization < 0 {
		return fmt.Errorf("invalid regularization constant: %f, should be >= 0", opt.Regularization)
	}
	if opt.RecombRate < 0 {
		return fmt.Errorf("invalid recombination rate: %f, should be >= 0", opt.RecombRate)
	}
	if opt.SamplingSize < 0 {
		return fmt.Errorf("invalid sampling size: %d, should be >= 0", opt.SamplingSize)
	}
	if opt.MaxCount < 1 {
		return fmt.Errorf("invalid max count: %d, should be >= 1", opt.MaxCount)
	}
	return nil
}
