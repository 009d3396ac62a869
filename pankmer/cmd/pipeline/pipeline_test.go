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
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/shenwei356/go-logging"
)

var testKmers = []string{
	"AAAAAAACGG",
	"AAAAAACGGC",
	"ATGCTGTAAA",
	"CGTTTTTTTA",
	"CTGTAAAAAA",
	"GCTGTAAAAA",
	"GTAAAAAAAC",
	"TGCTGTAAAA",
	"TGTAAAAAAA",
}

type site struct {
	pos    uint64
	kmers  []string
	counts []uint64
}

func (s *site) Position() uint64 { return s.pos }
func (s *site) Size() int        { return len(s.kmers) }

type testModel struct {
	chroms   []string
	variants int
	paths    int
	fail     string // chromosome to fail on
}

func (m *testModel) Chromosomes() []string        { return m.chroms }
func (m *testModel) NumVariants(chrom string) int { return m.variants }
func (m *testModel) NumPaths() int                { return m.paths }

func (m *testModel) UniqueKmers(chrom string, genomic, reads counter.KmerCounter, probs ProbabilityTable, coverage uint64) ([]UniqueKmers, error) {
	if chrom == m.fail {
		return nil, fmt.Errorf("broken chromosome")
	}
	sites := make([]UniqueKmers, m.variants)
	for i := range sites {
		kmer := testKmers[i%len(testKmers)]
		g, err := genomic.Abundance(kmer)
		if err != nil {
			return nil, err
		}
		r, err := reads.Abundance(kmer)
		if err != nil {
			return nil, err
		}
		if g != 1 || r != 1 {
			return nil, fmt.Errorf("%s: unexpected counts: %d, %d", kmer, g, r)
		}
		sites[i] = &site{pos: uint64(i * 100), kmers: []string{kmer}, counts: []uint64{r}}
	}
	return sites, nil
}

type call struct {
	chrom string
	mode  Mode
	paths []int
}

type testGenotyper struct {
	mu    sync.Mutex
	calls []call
	fail  bool
}

func (g *testGenotyper) Genotype(chrom string, kmers []UniqueKmers, probs ProbabilityTable, mode Mode,
	recombRate, effectiveN float64, paths []int) ([]GenotypingResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{chrom: chrom, mode: mode, paths: paths})
	g.mu.Unlock()

	if g.fail {
		return nil, fmt.Errorf("HMM failed")
	}
	if recombRate != DefaultOptions.RecombRate || effectiveN != DefaultOptions.EffectiveN {
		return nil, fmt.Errorf("unexpected parameters: %f, %f", recombRate, effectiveN)
	}
	if _, ok := probs.(*testTable); !ok {
		return nil, fmt.Errorf("unexpected probability table: %T", probs)
	}

	records := make([]GenotypingResult, len(kmers))
	for i := range kmers {
		records[i] = NewGenotypeLikelihoods(float64(len(paths)), 1, float64(i+1))
	}
	return records, nil
}

type testTable struct {
	min, max, mode uint64
	regularization float64
}

type testWriter struct {
	n int
}

func (w *testWriter) Write(results *Results, kmers *UniqueKmersMap) error {
	w.n++
	if len(kmers.Chromosomes()) != len(results.Chromosomes()) {
		return fmt.Errorf("chromosomes of results and unique k-mers differ")
	}
	return nil
}

func writeTestDB(t *testing.T, file string) {
	codes := make(map[uint64]uint64, len(testKmers))
	for _, kmer := range testKmers {
		code, err := util.Encode([]byte(kmer))
		if err != nil {
			t.Fatal(err)
		}
		codes[util.Canonical(code, 10)] = 1
	}
	if _, err := kmerdb.WriteKmers(file, 10, true, codes); err != nil {
		t.Fatal(err)
	}
}

func testOptions() *Options {
	opt := DefaultOptions
	opt.KmerSize = 10
	opt.Threads = 4
	opt.MaxCount = 1000
	return &opt
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	readsFile := filepath.Join(dir, "reads.kdb")
	genomeFile := filepath.Join(dir, "genome.kdb")
	writeTestDB(t, readsFile)
	writeTestDB(t, genomeFile)

	opt := testOptions()
	opt.Phasing = true
	opt.HistogramFile = filepath.Join(dir, "reads.histo")

	model := &testModel{chroms: []string{"chr1", "chr2", "chr3"}, variants: 5, paths: 40}
	genotyper := &testGenotyper{}
	writer := &testWriter{}

	var table *testTable
	newProbs := func(min, max, mode uint64, regularization float64) (ProbabilityTable, error) {
		table = &testTable{min, max, mode, regularization}
		return table, nil
	}

	p, err := New(opt, model, newProbs, genotyper, writer)
	if err != nil {
		t.Fatal(err)
	}
	results, sum, err := p.Run(readsFile, genomeFile)
	if err != nil {
		t.Fatal(err)
	}
	if p.Stage() != StageDone {
		t.Errorf("unexpected final stage: %s", p.Stage())
	}

	// coverage and probability table
	if sum.Coverage != 1 {
		t.Errorf("coverage: expected 1, returned %d", sum.Coverage)
	}
	if *table != (testTable{0, 4, 2, opt.Regularization}) {
		t.Errorf("unexpected probability table: %v", *table)
	}
	data, err := os.ReadFile(opt.HistogramFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "parameters\t0.5\t1\n") {
		t.Errorf("histogram file should end with the parameters line")
	}

	// path subsets: ceil(40/14) = 3
	if sum.SubsetSize != 14 || sum.Subsets != 3 || sum.PhasingPaths != 30 {
		t.Errorf("unexpected subsets: size %d, %d subsets, %d phasing paths", sum.SubsetSize, sum.Subsets, sum.PhasingPaths)
	}
	if n := len(model.chroms) * (3 + 1); len(genotyper.calls) != n {
		t.Errorf("expected %d genotyping tasks, %d called", n, len(genotyper.calls))
	}
	var nPhasing int
	for _, c := range genotyper.calls {
		if c.mode == ModePhasing {
			nPhasing++
			if len(c.paths) != 30 {
				t.Errorf("phasing should use 30 paths, %d used", len(c.paths))
			}
		} else if c.mode != ModeGenotyping {
			t.Errorf("unexpected mode: %s", c.mode)
		}
	}
	if nPhasing != len(model.chroms) {
		t.Errorf("expected %d phasing tasks, %d called", len(model.chroms), nPhasing)
	}

	// results
	if writer.n != 1 {
		t.Errorf("writer should be called once, %d called", writer.n)
	}
	for _, chrom := range model.chroms {
		records, ok := results.Get(chrom)
		if !ok {
			t.Errorf("no results of %s", chrom)
			continue
		}
		if len(records) != model.variants {
			t.Errorf("%s: expected %d results, returned %d", chrom, model.variants, len(records))
		}
		for i, r := range records {
			var s float64
			for _, v := range r.(*GenotypeLikelihoods).Values {
				s += v
			}
			if math.Abs(s-1) > 1e-9 {
				t.Errorf("%s, site %d: likelihoods sum to %f", chrom, i, s)
			}
		}
	}
	if len(sum.ChromosomeTimes) != len(model.chroms) {
		t.Errorf("expected %d chromosome runtimes, found %d", len(model.chroms), len(sum.ChromosomeTimes))
	}

	// summary
	file := filepath.Join(dir, "summary.toml")
	if err = sum.WriteTOML(file); err != nil {
		t.Fatal(err)
	}
	sum2, err := ReadSummary(file)
	if err != nil {
		t.Fatal(err)
	}
	if sum2.Coverage != sum.Coverage || sum2.Subsets != sum.Subsets || len(sum2.Stages) != len(sum.Stages) {
		t.Errorf("summary changed after saving: %+v", sum2)
	}
}

func TestRunWithCounters(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "reads.kdb")
	writeTestDB(t, file)

	reads, err := counter.NewAssociativeCounter(file, 10)
	if err != nil {
		t.Fatal(err)
	}

	model := &testModel{chroms: []string{"chr1"}, variants: 3, paths: 10}
	genotyper := &testGenotyper{}
	newProbs := func(min, max, mode uint64, regularization float64) (ProbabilityTable, error) {
		return &testTable{min, max, mode, regularization}, nil
	}

	p, err := New(testOptions(), model, newProbs, genotyper, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, sum, err := p.RunWithCounters(reads, reads)
	if err != nil {
		t.Fatal(err)
	}

	// small panel: one subset of all paths, genotyping only
	if sum.Subsets != 1 || sum.SubsetSize != 10 || len(genotyper.calls) != 1 {
		t.Errorf("unexpected subsets: %d of size %d, %d calls", sum.Subsets, sum.SubsetSize, len(genotyper.calls))
	}
	if len(genotyper.calls[0].paths) != 10 || genotyper.calls[0].mode != ModeGenotyping {
		t.Errorf("unexpected call: %+v", genotyper.calls[0])
	}
}

func TestWarnings(t *testing.T) {
	var buf bytes.Buffer
	logging.SetBackend(logging.NewLogBackend(&buf, "", 0))
	defer logging.SetBackend(logging.NewLogBackend(os.Stderr, "", 0))

	file := filepath.Join(t.TempDir(), "reads.kdb")
	writeTestDB(t, file)
	reads, err := counter.NewAssociativeCounter(file, 10)
	if err != nil {
		t.Fatal(err)
	}

	model := &testModel{chroms: []string{"chr1"}, variants: 3, paths: LargePanel + 1}
	newProbs := func(min, max, mode uint64, regularization float64) (ProbabilityTable, error) {
		return &testTable{min, max, mode, regularization}, nil
	}

	opt := testOptions()
	opt.Verbose = false
	p, err := New(opt, model, newProbs, &testGenotyper{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err = p.RunWithCounters(reads, reads); err != nil {
		t.Fatal(err)
	}

	// warnings are logged even in the quiet mode
	out := buf.String()
	for _, msg := range []string{
		"threads for determining unique k-mers",
		fmt.Sprintf("the panel has %d paths", LargePanel+1),
	} {
		if !strings.Contains(out, msg) {
			t.Errorf("warning not found: %s, log:\n%s", msg, out)
		}
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "reads.kdb")
	writeTestDB(t, file)

	newProbs := func(min, max, mode uint64, regularization float64) (ProbabilityTable, error) {
		return &testTable{min, max, mode, regularization}, nil
	}

	// missing reads file
	p, _ := New(testOptions(), &testModel{chroms: []string{"chr1"}, variants: 1, paths: 2}, newProbs, &testGenotyper{}, nil)
	_, _, err := p.Run(filepath.Join(dir, "nonexistent.kdb"), file)
	if !errors.Is(err, counter.ErrSource) || p.Stage() != StageCountReads {
		t.Errorf("missing reads file: stage %s, %v", p.Stage(), err)
	}

	// wrong k of the genome
	opt := testOptions()
	opt.KmerSize = 11
	p, _ = New(opt, &testModel{chroms: []string{"chr1"}, variants: 1, paths: 2}, newProbs, &testGenotyper{}, nil)
	_, _, err = p.Run(file, file)
	if !errors.Is(err, counter.ErrSizeMismatch) || p.Stage() != StageCountReads {
		t.Errorf("wrong k: stage %s, %v", p.Stage(), err)
	}

	// failed unique k-mer extraction
	p, _ = New(testOptions(), &testModel{chroms: []string{"chr1", "chr2"}, variants: 1, paths: 2, fail: "chr2"}, newProbs, &testGenotyper{}, nil)
	_, _, err = p.Run(file, file)
	if err == nil || p.Stage() != StageExtractUniqueKmers {
		t.Errorf("failed extraction: stage %s, %v", p.Stage(), err)
	}

	// failed genotyping
	p, _ = New(testOptions(), &testModel{chroms: []string{"chr1"}, variants: 1, paths: 2}, newProbs, &testGenotyper{fail: true}, nil)
	_, _, err = p.Run(file, file)
	if err == nil || p.Stage() != StageGenotype {
		t.Errorf("failed genotyping: stage %s, %v", p.Stage(), err)
	}

	// no peak
	empty := filepath.Join(dir, "empty.kdb")
	if _, err = kmerdb.WriteKmers(empty, 10, true, map[uint64]uint64{}); err != nil {
		t.Fatal(err)
	}
	p, _ = New(testOptions(), &testModel{chroms: []string{"chr1"}, variants: 1, paths: 2}, newProbs, &testGenotyper{}, nil)
	_, _, err = p.Run(empty, file)
	if !errors.Is(err, counter.ErrNoPeak) || p.Stage() != StageEstimateCoverage {
		t.Errorf("no peak: stage %s, %v", p.Stage(), err)
	}
}

func TestCheckOptions(t *testing.T) {
	opt := DefaultOptions
	if err := CheckOptions(&opt); err != nil {
		t.Errorf("default options should be valid: %s", err)
	}

	opt.Genotyping = false
	opt.Phasing = false
	if err := CheckOptions(&opt); err == nil {
		t.Errorf("at least one of genotyping and phasing should be requested")
	}

	opt = DefaultOptions
	opt.KmerSize = 33
	if err := CheckOptions(&opt); err == nil {
		t.Errorf("k > 32 should be rejected")
	}
}

func TestStage(t *testing.T) {
	if StageGenotype.String() != "genotype" || StageDone.String() != "done" {
		t.Errorf("unexpected stage names")
	}
	if Stage(100).String() != "stage(100)" {
		t.Errorf("unexpected name of unknown stage: %s", Stage(100))
	}
}
