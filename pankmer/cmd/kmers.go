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
	"strings"
	"time"

	"github.com/shenwei356/PanKmer/pankmer/cmd/kff"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/kmers"
	"github.com/spf13/cobra"
)

var kmersCmd = &cobra.Command{
	Use:   "kmers",
	Short: "View k-mers and their counts in a k-mer database or KFF file",
	Long: `View k-mers and their counts in a k-mer database or KFF file

Output (tab-delimited):
  kmer, count

Attentions:
  1. K-mers in a k-mer database are sorted, while the ones in a KFF
     file are in their original order.
  2. K-mers with counts out of the range [-m, -M] are skipped.

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

		outFile := expandPath(getFlagString(cmd, "out-file"))
		minCount := getFlagUint64(cmd, "min-count")
		maxCount := getFlagUint64(cmd, "max-count")
		if maxCount > 0 && maxCount < minCount {
			checkError(fmt.Errorf("the value of flag -M/--max-count (%d) should not be smaller than that of -m/--min-count (%d)", maxCount, minCount))
		}
		showHeader := !getFlagBool(cmd, "no-header")
		showInfo := getFlagBool(cmd, "info")

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if len(files) > 1 {
			checkError(fmt.Errorf("only one input file is allowed"))
		}
		file := expandPath(files[0])
		if isStdin(file) {
			checkError(fmt.Errorf("stdin is not supported, please give a k-mer database or KFF file"))
		}

		// ---------------------------------------------------------------
		// output file handler
		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		keep := func(count uint64) bool {
			return count >= minCount && (maxCount == 0 || count <= maxCount)
		}

		// KFF

		if isKFFFile(file) {
			rdr, err := kff.NewReader(file)
			checkError(err)
			defer rdr.Close()

			if showInfo {
				fmt.Fprintf(outfh, "%s\tk=%d\n", rdr.Header, rdr.K())
				return
			}

			if showHeader {
				fmt.Fprintf(outfh, "kmer\tcount\n")
			}
			var kmer []byte
			var count uint64
			for {
				kmer, _, count, err = rdr.Next()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(err)
				}
				if keep(count) {
					fmt.Fprintf(outfh, "%s\t%d\n", kmer, count)
				}
			}
			return
		}

		// k-mer database

		rdr, err := kmerdb.NewReader(file)
		checkError(err)
		defer rdr.Close()

		if showInfo {
			fmt.Fprintf(outfh, "%s\n", rdr.Header)
			return
		}

		if showHeader {
			fmt.Fprintf(outfh, "kmer\tcount\n")
		}
		k := rdr.Header.K()
		checkError(rdr.Walk(func(code, count uint64) bool {
			if keep(count) {
				fmt.Fprintf(outfh, "%s\t%d\n", kmers.MustDecode(code, k), count)
			}
			return false
		}))
	},
}

func init() {
	utilsCmd.AddCommand(kmersCmd)

	kmersCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))

	kmersCmd.Flags().Uint64P("min-count", "m", 0,
		formatFlagUsage(`Minimum k-mer count.`))

	kmersCmd.Flags().Uint64P("max-count", "M", 0,
		formatFlagUsage(`Maximum k-mer count (0 for no limit).`))

	kmersCmd.Flags().BoolP("no-header", "H", false,
		formatFlagUsage(`Do not print the header line.`))

	kmersCmd.Flags().BoolP("info", "i", false,
		formatFlagUsage(`Only print the file header.`))

	kmersCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line).`))

	kmersCmd.SetUsageTemplate(usageTemplate("[-o out.tsv.gz] <k-mer file>"))
}
