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
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/PanKmer/pankmer/cmd/pool"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count canonical k-mers of sequence files",
	Long: `Count canonical k-mers of sequence files

Input:
  1. Sequences in FASTA/Q format, plain or compressed (gzip, xz, zstd, bzip2).
  2. Input files can be given as positional arguments, via a file list (-X),
     or in a directory (-I) with files matching a regular expression (-r).
     K-mer counts of all input files are merged.

Output (-o):
  1. A k-mer database file with the suffix ".kdb" by default.
  2. A KFF file if the output file has a suffix of ".kff" or ".kff.gz".

Attentions:
  1. K-mers containing bases other than A, C, G, T are skipped.
  2. Only canonical k-mers, i.e., the lexicographically smaller one of a
     k-mer and its reverse complement, are saved.
  3. K-mers can be restricted to the ones in a file (-K), e.g., unique
     k-mers of a pangenome graph, to save memory.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

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

		k := getFlagPositiveInt(cmd, "kmer")
		checkK(k)

		outFile := expandPath(getFlagString(cmd, "out-file"))
		dataSize := getFlagNonNegativeInt(cmd, "data-size")
		if dataSize > 8 {
			checkError(fmt.Errorf("the value of flag --data-size should be in the range of [0, 8]"))
		}
		kmersFile := expandPath(getFlagString(cmd, "kmers-in"))

		inDir := expandPath(getFlagString(cmd, "in-dir"))
		readFromDir := inDir != ""
		if readFromDir {
			var isDir bool
			isDir, err = pathutil.IsDir(inDir)
			checkError(err)
			if !isDir {
				checkError(fmt.Errorf("the value of flag -I/--in-dir should be a directory: %s", inDir))
			}
		}

		reFileStr := getFlagString(cmd, "file-regexp")
		var reFile *regexp.Regexp
		if reFileStr != "" {
			if !regexp.MustCompile(`^\(\?i\)`).MatchString(reFileStr) {
				reFileStr = reIgnoreCaseStr + reFileStr
			}
			reFile, err = regexp.Compile(reFileStr)
			checkError(err)
		}

		// ---------------------------------------------------------------
		// input files

		if outputLog {
			log.Infof("PanKmer v%s", VERSION)
			log.Info()
		}

		var files []string
		if readFromDir {
			if reFile == nil {
				checkError(fmt.Errorf("flag -r/--file-regexp needed when -I/--in-dir is given"))
			}
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			checkError(err)
			if len(files) == 0 {
				checkError(fmt.Errorf("no files found in %s with the regular expression: %s", inDir, reFileStr))
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		}

		if outFile == "" {
			if len(files) > 1 {
				checkError(fmt.Errorf("flag -o/--out-file needed for multiple input files"))
			}
			outFile = outFileOf(files[0])
		}

		if outputLog {
			log.Infof("counting %d-mers from %d file(s) with %d threads", k, len(files), opt.NumCPUs)
		}

		var only map[uint64]interface{}
		if kmersFile != "" {
			only, err = readKmerCodes(kmersFile, k)
			checkError(err)
			if outputLog {
				log.Infof("  %s k-mers to count are read from %s", humanize.Comma(int64(len(only))), kmersFile)
			}
		}

		// ---------------------------------------------------------------
		// count

		// process bar
		var pbs *mpb.Progress
		var bar *mpb.Bar
		var chDuration chan time.Duration
		var doneDuration chan int
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(files)),
				mpb.PrependDecorators(
					decor.Name("processed files: ", decor.WC{W: len("processed files: "), C: decor.DindentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.EwmaETA(decor.ET_STYLE_GO, 3),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)

			chDuration = make(chan time.Duration, opt.NumCPUs)
			doneDuration = make(chan int)
			go func() {
				for t := range chDuration {
					bar.EwmaIncrBy(1, t)
				}
				doneDuration <- 1
			}()
		}

		m := make(map[uint64]uint64, mapInitSize)
		var mu sync.Mutex
		var nKmers, nSeqs int

		p := pool.New(pool.Size(opt.NumCPUs, len(files)))
		for _, file := range files {
			file := file
			p.Submit(func() error {
				startTime := time.Now()
				defer func() {
					if opt.Verbose {
						chDuration <- time.Since(startTime)
					}
				}()

				fastxReader, err := fastx.NewReader(nil, file, "")
				if err != nil {
					return fmt.Errorf("failed to read seq file: %s", err)
				}
				defer fastxReader.Close()

				m1 := make(map[uint64]uint64, mapInitSize)
				var record *fastx.Record
				var n, i int
				for {
					record, err = fastxReader.Read()
					if err != nil {
						if err == io.EOF {
							break
						}
						return fmt.Errorf("read seq %d in %s: %s", i, file, err)
					}
					i++
					n += countKmers(record.Seq.Seq, k, m1, only)
				}

				mu.Lock()
				for code, c := range m1 {
					m[code] += c
				}
				nKmers += n
				nSeqs += i
				mu.Unlock()
				return nil
			})
		}
		err = p.Wait()

		if opt.Verbose {
			close(chDuration)
			<-doneDuration
			pbs.Wait()
		}
		checkError(err)

		if outputLog {
			log.Infof("  %s k-mers from %s sequences, %s distinct canonical ones",
				humanize.Comma(int64(nKmers)), humanize.Comma(int64(nSeqs)), humanize.Comma(int64(len(m))))
		}

		// ---------------------------------------------------------------
		// output

		n, err := writeKmerFile(outFile, k, m, dataSize, true)
		checkError(err)

		if outputLog {
			log.Infof("%s k-mers saved to %s", humanize.Comma(int64(n)), outFile)
		}
	},
}

func init() {
	RootCmd.AddCommand(countCmd)

	countCmd.Flags().IntP("kmer", "k", 31,
		formatFlagUsage(`K-mer size. It should be in the range of [5, 32].`))

	countCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Out file, with a suffix of ".kdb", or ".kff"/".kff.gz" for the KFF format. `+
			`By default, it's "<input file name>.kdb" for a single input file.`))

	countCmd.Flags().IntP("data-size", "", 0,
		formatFlagUsage(`Bytes to store a count in KFF files (0 for automatically choosing). Counts exceeding the capacity are truncated.`))

	countCmd.Flags().StringP("kmers-in", "K", "",
		formatFlagUsage(`Only count k-mers in this file, a k-mer database, a KFF file, or a text file with k-mers in the first column.`))

	countCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA/Q files. Directory symlinks are followed.`))

	countCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(\.gz|\.xz|\.zst|\.bz2)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	countCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line). If given, they are appended to files from CLI arguments.`))

	countCmd.SetUsageTemplate(usageTemplate("[-k <k>] [-o out.kdb] {[-I <seqs dir>] | -X <file list> | <seq files>}"))
}
