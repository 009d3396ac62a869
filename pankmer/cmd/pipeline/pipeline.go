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
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/PanKmer/pankmer/cmd/pool"
	"github.com/shenwei356/PanKmer/pankmer/cmd/sampler"
	"github.com/shenwei356/go-logging"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var log = logging.MustGetLogger("pankmer")

// LargePanel is the number of paths above which genotyping might be slow.
const LargePanel = 200

// Stage is a step of a run.
type Stage int

// Stages of a run, in order.
const (
	StageInit Stage = iota
	StageCountReads
	StageEstimateCoverage
	StageCountGenome
	StageExtractUniqueKmers
	StageSamplePaths
	StageGenotype
	StageMerge
	StageDone
)

var stageNames = []string{
	"init",
	"count reads",
	"estimate coverage",
	"count genome",
	"extract unique k-mers",
	"sample paths",
	"genotype",
	"merge",
	"done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Pipeline runs genotyping of all chromosomes of a Model.
type Pipeline struct {
	opt *Options

	model     Model
	newProbs  ProbabilityTableFunc
	genotyper Genotyper
	writer    Writer // optional

	stage atomic.Int32
}

// New creates a Pipeline. The writer can be nil.
func New(opt *Options, model Model, newProbs ProbabilityTableFunc, genotyper Genotyper, writer Writer) (*Pipeline, error) {
	if err := CheckOptions(opt); err != nil {
		return nil, err
	}
	if model == nil || newProbs == nil || genotyper == nil {
		return nil, fmt.Errorf("model, probability table and genotyper are needed")
	}
	return &Pipeline{
		opt:       opt,
		model:     model,
		newProbs:  newProbs,
		genotyper: genotyper,
		writer:    writer,
	}, nil
}

// Stage returns the current stage, or the failed one after an error.
func (p *Pipeline) Stage() Stage {
	return Stage(p.stage.Load())
}

// Run runs all stages with k-mer counts of reads (.kdb or .kff) and
// of the genome (.kdb).
func (p *Pipeline) Run(readsFile, genomeFile string) (*Results, *Summary, error) {
	k := p.opt.KmerSize
	return p.run(
		func() (counter.KmerCounter, error) { return counter.Open(readsFile, k) },
		func() (counter.KmerCounter, error) { return counter.NewAssociativeCounter(genomeFile, k) },
	)
}

// RunWithCounters is the same as Run, with counters created by the caller.
func (p *Pipeline) RunWithCounters(reads, genomic counter.KmerCounter) (*Results, *Summary, error) {
	if reads == nil || genomic == nil {
		return nil, nil, fmt.Errorf("k-mer counters of reads and genome are needed")
	}
	return p.run(
		func() (counter.KmerCounter, error) { return reads, nil },
		func() (counter.KmerCounter, error) { return genomic, nil },
	)
}

func (p *Pipeline) enter(s Stage, sum *Summary, timeStage *time.Time) {
	prev := p.Stage()
	if prev != StageInit || s != StageCountReads {
		sum.addStage(prev, time.Since(*timeStage))
	}
	*timeStage = time.Now()
	p.stage.Store(int32(s))
	if p.opt.Verbose {
		log.Infof("[%d/%d] %s", int(s), int(StageDone), s)
	}
}

func (p *Pipeline) fail(err error) error {
	return errors.Wrapf(err, "stage %q", p.Stage())
}

func (p *Pipeline) run(openReads, openGenome func() (counter.KmerCounter, error)) (*Results, *Summary, error) {
	opt := p.opt
	verbose := opt.Verbose
	timeStart := time.Now()
	timeStage := timeStart
	p.stage.Store(int32(StageInit))

	sum := &Summary{KmerSize: opt.KmerSize}

	// ---------------------------------------------------------------
	// k-mer counts of reads

	p.enter(StageCountReads, sum, &timeStage)
	reads, err := openReads()
	if err != nil {
		return nil, nil, p.fail(err)
	}
	if err = reads.Populate(); err != nil {
		return nil, nil, p.fail(err)
	}

	p.enter(StageEstimateCoverage, sum, &timeStage)
	peak, err := reads.HistogramPeak(opt.MaxCount, opt.LargestPeak, opt.HistogramFile)
	if err != nil {
		return nil, nil, p.fail(err)
	}
	sum.Coverage = peak
	if verbose {
		log.Infof("  k-mer abundance peak: %d", peak)
	}

	probs, err := p.newProbs(peak/4, peak*4, 2*peak, opt.Regularization)
	if err != nil {
		return nil, nil, p.fail(errors.Wrap(err, "creating probability table"))
	}

	// ---------------------------------------------------------------
	// k-mer counts of the genome

	p.enter(StageCountGenome, sum, &timeStage)
	genomic, err := openGenome()
	if err != nil {
		return nil, nil, p.fail(err)
	}
	if err = genomic.Populate(); err != nil {
		return nil, nil, p.fail(err)
	}
	if verbose {
		if n, err := genomic.NumKmers(); err == nil {
			log.Infof("  %s k-mers in the genome", humanize.Comma(int64(n)))
		}
	}

	// ---------------------------------------------------------------
	// unique k-mers, one task per chromosome

	p.enter(StageExtractUniqueKmers, sum, &timeStage)
	chroms := p.model.Chromosomes()
	sum.Chromosomes = len(chroms)
	if len(chroms) == 0 {
		return nil, nil, p.fail(fmt.Errorf("no chromosomes found"))
	}

	threads := pool.Size(opt.Threads, len(chroms))
	if threads < opt.Threads {
		log.Warningf("  using %d threads for determining unique k-mers", threads)
	}
	sum.ThreadsUniqueKmers = threads

	uniqueKmers := NewUniqueKmersMap()
	tasks := pool.New(threads)
	for _, chrom := range chroms {
		chrom := chrom
		tasks.Submit(func() error {
			t := time.Now()
			kmers, err := p.model.UniqueKmers(chrom, genomic, reads, probs, peak)
			if err != nil {
				return errors.Wrapf(err, "chromosome %s", chrom)
			}
			return uniqueKmers.Insert(chrom, kmers, time.Since(t))
		})
	}
	if err = tasks.Wait(); err != nil {
		return nil, nil, p.fail(err)
	}
	reads = nil // not needed anymore

	// ---------------------------------------------------------------
	// path subsets

	p.enter(StageSamplePaths, sum, &timeStage)
	nPaths := p.model.NumPaths()
	sum.Paths = nPaths
	if nPaths > LargePanel {
		log.Warningf("  the panel has %d paths, genotyping might take a long time, try reducing the panel size", nPaths)
	}

	smp, err := sampler.New(nPaths)
	if err != nil {
		return nil, nil, p.fail(err)
	}
	size := opt.SamplingSize
	if size == 0 {
		size = sampler.SubsetSize(nPaths)
	}
	if size > nPaths {
		size = nPaths
	}
	subsets, err := smp.Partition(size)
	if err != nil {
		return nil, nil, p.fail(err)
	}
	phasingPaths := smp.PhasingSubset()
	sum.SubsetSize = size
	if opt.Genotyping {
		sum.Subsets = len(subsets)
		if verbose {
			log.Infof("  sampled %d subset(s) of paths each of size %d for genotyping", len(subsets), size)
		}
	}
	if opt.Phasing {
		sum.PhasingPaths = len(phasingPaths)
		if verbose {
			log.Infof("  sampled %d paths for phasing", len(phasingPaths))
		}
	}

	// ---------------------------------------------------------------
	// genotyping, one task per chromosome per subset

	p.enter(StageGenotype, sum, &timeStage)
	threads = pool.Size(opt.Threads, len(chroms)*len(subsets))
	if threads < opt.Threads {
		log.Warningf("  using %d threads for genotyping", threads)
	}
	sum.ThreadsGenotyping = threads

	nTasks := 0
	if opt.Phasing {
		nTasks += len(chroms)
	}
	if opt.Genotyping {
		nTasks += len(chroms) * len(subsets)
	}

	// process bar
	var pbs *mpb.Progress
	var bar *mpb.Bar
	var chDuration chan time.Duration
	var doneDuration chan int
	if verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(nTasks),
			mpb.PrependDecorators(
				decor.Name("genotyping tasks: ", decor.WC{W: len("genotyping tasks: "), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)

		chDuration = make(chan time.Duration, threads)
		doneDuration = make(chan int)
		go func() {
			for t := range chDuration {
				bar.EwmaIncrBy(1, t)
			}
			doneDuration <- 1
		}()
	}

	results := NewResults()
	genotype := func(chrom string, kmers []UniqueKmers, mode Mode, paths []int) func() error {
		return func() error {
			t := time.Now()
			records, err := p.genotyper.Genotype(chrom, kmers, probs, mode,
				opt.RecombRate, opt.EffectiveN, paths)
			if err == nil {
				if n := p.model.NumVariants(chrom); len(records) != n {
					err = fmt.Errorf("%d results returned for %d variants", len(records), n)
				} else {
					err = results.Merge(chrom, records, time.Since(t))
				}
			}
			if verbose {
				chDuration <- time.Since(t)
			}
			if err != nil {
				return errors.Wrapf(err, "%s of chromosome %s", mode, chrom)
			}
			return nil
		}
	}

	tasks = pool.New(threads)
	for _, chrom := range chroms {
		kmers, _ := uniqueKmers.Get(chrom)
		if opt.Phasing {
			tasks.Submit(genotype(chrom, kmers, ModePhasing, phasingPaths))
		}
		if opt.Genotyping {
			for _, subset := range subsets {
				tasks.Submit(genotype(chrom, kmers, ModeGenotyping, subset))
			}
		}
	}
	err = tasks.Wait()

	if verbose {
		close(chDuration)
		<-doneDuration
		if err != nil {
			bar.Abort(false)
		}
		pbs.Wait()
	}
	if err != nil {
		return nil, nil, p.fail(err)
	}

	// ---------------------------------------------------------------
	// output

	p.enter(StageMerge, sum, &timeStage)
	for _, chrom := range chroms {
		if _, ok := results.Get(chrom); !ok {
			return nil, nil, p.fail(fmt.Errorf("no results of chromosome %s", chrom))
		}
		sum.addChromosome(chrom, uniqueKmers.Runtime(chrom)+results.Runtime(chrom))
	}
	if p.writer != nil {
		if err = p.writer.Write(results, uniqueKmers); err != nil {
			return nil, nil, p.fail(errors.Wrap(err, "writing results"))
		}
	}
	uniqueKmers.Release()

	p.enter(StageDone, sum, &timeStage)
	sum.Total = time.Since(timeStart).Seconds()
	if verbose {
		log.Infof("  total time: %s", time.Since(timeStart))
	}
	return results, sum, nil
}
