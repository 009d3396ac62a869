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

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/PanKmer/pankmer/cmd/histogram"
	"github.com/spf13/cobra"
)

var histoCmd = &cobra.Command{
	Use:   "histo",
	Short: "Estimate the k-mer coverage from the k-mer abundance histogram",
	Long: `Estimate the k-mer coverage from the k-mer abundance histogram

Steps:
  1. Count k-mers of each abundance in the range of [1, --max-count].
  2. Smooth the histogram with a sliding window of 3 and find local maxima.
  3. Choose the peak with the highest frequency, or the second one (--second-peak).

Output (tab-delimited, to stdout):
  peak           k-mer abundance of the chosen peak.
  coverage       ceil(total k-mer counts / genomic k-mers), only with
                 --genome-kmers or --genome.

Optional outputs:
  -o/--out-file  abundance histogram, one line per abundance in [0, --max-count],
                 followed by a line of "parameters<TAB><peak/2><TAB><peak>".
  --plot         a figure of the raw and smoothed histograms.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}

		outputLog := opt.Verbose || opt.Log2File

		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		var err error

		// ---------------------------------------------------------------

		maxCount := getFlagPositiveInt(cmd, "max-count")
		largestPeak := !getFlagBool(cmd, "second-peak")
		outFile := expandPath(getFlagString(cmd, "out-file"))
		plotFile := expandPath(getFlagString(cmd, "plot"))
		genomeKmers := getFlagUint64(cmd, "genome-kmers")
		genomeFile := expandPath(getFlagString(cmd, "genome"))
		if genomeKmers > 0 && genomeFile != "" {
			checkError(fmt.Errorf("flag --genome-kmers and --genome are not allowed at the same time"))
		}

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if len(files) > 1 {
			checkError(fmt.Errorf("only one input file is allowed"))
		}
		file := files[0]
		if isStdin(file) {
			checkError(fmt.Errorf("stdin is not supported, please give a k-mer database or KFF file"))
		}

		// ---------------------------------------------------------------

		k, err := kmerFileK(file)
		checkError(err)

		reads, err := counter.Open(file, k)
		checkError(err)

		if outputLog {
			log.Infof("reading k-mers from %s", file)
		}
		checkError(reads.Populate())
		if outputLog {
			n, _ := reads.NumKmers()
			log.Infof("  %s distinct %d-mers loaded", humanize.Comma(int64(n)), k)
		}

		peak, err := reads.HistogramPeak(maxCount, largestPeak, outFile)
		checkError(err)
		if outputLog {
			log.Infof("k-mer abundance peak: %d", peak)
			if outFile != "" {
				log.Infof("histogram saved to %s", outFile)
			}
		}

		fmt.Printf("peak\t%d\n", peak)

		if genomeFile != "" {
			genomic, err := counter.Open(genomeFile, k)
			checkError(err)
			n, err := genomic.NumKmers()
			checkError(err)
			genomeKmers = uint64(n)
			if outputLog {
				log.Infof("%s distinct %d-mers in %s", humanize.Comma(int64(n)), k, genomeFile)
			}
		}
		if genomeKmers > 0 {
			coverage, err := reads.Coverage(genomeKmers)
			checkError(err)
			fmt.Printf("coverage\t%d\n", coverage)
		}

		// ---------------------------------------------------------------

		if plotFile != "" {
			h, err := histogram.New(maxCount)
			checkError(err)
			checkError(reads.Walk(func(_ string, count uint64) bool {
				h.Add(count)
				return false
			}))

			title := getFlagString(cmd, "plot-title")
			if title == "" {
				title = fmt.Sprintf("%d-mer abundance histogram of %s", k, strings.TrimSuffix(file, ".gz"))
			}
			checkError(plotHistogram(h, peak, title, plotFile))
			if outputLog {
				log.Infof("histogram plot saved to %s", plotFile)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(histoCmd)

	histoCmd.Flags().IntP("max-count", "m", 10000,
		formatFlagUsage(`Maximum k-mer abundance in the histogram, larger ones are ignored.`))

	histoCmd.Flags().BoolP("second-peak", "2", false,
		formatFlagUsage(`Choose the second largest peak instead of the largest one, `+
			`e.g., for heterozygous genomes where the homozygous peak is lower.`))

	histoCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Out file of the histogram, supports a ".gz" suffix. Missing parent directories are created.`))

	histoCmd.Flags().StringP("plot", "p", "",
		formatFlagUsage(`Plot the histogram to a file, the format is decided by the suffix, e.g., .png, .pdf, .svg.`))

	histoCmd.Flags().StringP("plot-title", "", "",
		formatFlagUsage(`Title of the plot.`))

	histoCmd.Flags().Uint64P("genome-kmers", "g", 0,
		formatFlagUsage(`Number of genomic k-mers, for computing the k-mer coverage.`))

	histoCmd.Flags().StringP("genome", "G", "",
		formatFlagUsage(`K-mer database or KFF file of the genome, for computing the k-mer coverage.`))

	histoCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line).`))

	histoCmd.SetUsageTemplate(usageTemplate("[-o histo.tsv] [-p histo.png] [-G genome.kdb] <reads k-mer file>"))
}
