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
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shenwei356/xopen"
)

// Summary records the parameters decided during a run and the time spent.
type Summary struct {
	KmerSize int    `toml:"kmer-size" comment:"k-mer size"`
	Coverage uint64 `toml:"kmer-coverage" comment:"k-mer abundance peak of reads"`

	Chromosomes  int `toml:"chromosomes" comment:"number of chromosomes"`
	Paths        int `toml:"paths" comment:"number of haplotype paths"`
	SubsetSize   int `toml:"subset-size" comment:"number of paths in each subset"`
	Subsets      int `toml:"subsets" comment:"number of path subsets for genotyping"`
	PhasingPaths int `toml:"phasing-paths" comment:"number of paths for phasing"`

	ThreadsUniqueKmers int `toml:"threads-unique-kmers"`
	ThreadsGenotyping  int `toml:"threads-genotyping"`

	Stages          []StageTime      `toml:"stage" comment:"time spent in each stage, in seconds"`
	ChromosomeTimes []ChromosomeTime `toml:"chromosome" comment:"time spent on each chromosome, in seconds"`

	Total float64 `toml:"total-time" comment:"wall-clock time, in seconds"`
}

// StageTime is the time spent in a stage.
type StageTime struct {
	Stage   string  `toml:"name"`
	Seconds float64 `toml:"seconds"`
}

// ChromosomeTime is the time spent on unique k-mers and genotyping
// of a chromosome, summed over tasks.
type ChromosomeTime struct {
	Chromosome string  `toml:"name"`
	Seconds    float64 `toml:"seconds"`
}

func (s *Summary) addStage(stage Stage, t time.Duration) {
	s.Stages = append(s.Stages, StageTime{Stage: stage.String(), Seconds: t.Seconds()})
}

func (s *Summary) addChromosome(chrom string, t time.Duration) {
	s.ChromosomeTimes = append(s.ChromosomeTimes, ChromosomeTime{Chromosome: chrom, Seconds: t.Seconds()})
}

// WriteTOML saves the summary into a TOML file.
func (s *Summary) WriteTOML(file string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}

	outfh, err := xopen.Wopen(file)
	if err != nil {
		return err
	}
	_, err = outfh.Write(data)
	if err != nil {
		outfh.Close()
		return err
	}
	return outfh.Close()
}

// ReadSummary reads a summary from a TOML file.
func ReadSummary(file string) (*Summary, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	s := &Summary{}
	err = toml.NewDecoder(fh).Decode(s)
	if err != nil {
		return nil, err
	}
	return s, nil
}
