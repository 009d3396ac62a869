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
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query abundances of k-mers",
	Long: `Query abundances of k-mers

K-mers to query are given as positional arguments, or in a file (-f)
with one k-mer per line ("-" for stdin).

Output (tab-delimited):
  kmer, count

Attentions:
  1. A k-mer is searched as it is first, and then its canonical form.
  2. Absent k-mers have a count of 0.
  3. K-mers with a size different from that of the database are reported as errors.

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

		dbFile := expandPath(getFlagString(cmd, "db"))
		if dbFile == "" {
			checkError(fmt.Errorf("flag -d/--db needed"))
		}
		queryFile := expandPath(getFlagString(cmd, "kmer-file"))
		outFile := expandPath(getFlagString(cmd, "out-file"))
		showHeader := !getFlagBool(cmd, "no-header")

		if queryFile == "" && len(args) == 0 {
			checkError(fmt.Errorf("no k-mers given, please give them as positional arguments or via -f/--kmer-file"))
		}

		// ---------------------------------------------------------------

		k, err := kmerFileK(dbFile)
		checkError(err)

		db, err := counter.Open(dbFile, k)
		checkError(err)

		if outputLog {
			log.Infof("loading %d-mers from %s", k, dbFile)
		}
		checkError(db.Populate())

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		if showHeader {
			fmt.Fprintf(outfh, "kmer\tcount\n")
		}

		query := func(kmer string) {
			if len(kmer) != k {
				checkError(fmt.Errorf("k-mer size (%d) does not match that of the database (%d): %s", len(kmer), k, kmer))
			}
			count, err := db.Abundance(kmer)
			checkError(err)
			fmt.Fprintf(outfh, "%s\t%d\n", kmer, count)
		}

		for _, kmer := range args {
			query(kmer)
		}

		if queryFile == "" {
			return
		}

		fh, err := xopen.Ropen(queryFile)
		checkError(err)
		defer fh.Close()

		scanner := bufio.NewScanner(fh)
		var kmer string
		for scanner.Scan() {
			kmer = strings.TrimSpace(scanner.Text())
			if kmer == "" || kmer[0] == '#' {
				continue
			}
			query(kmer)
		}
		checkError(scanner.Err())
	},
}

func init() {
	RootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringP("db", "d", "",
		formatFlagUsage(`K-mer database or KFF file.`))

	queryCmd.Flags().StringP("kmer-file", "f", "",
		formatFlagUsage(`File of k-mers to query, one k-mer per line ("-" for stdin).`))

	queryCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	queryCmd.Flags().BoolP("no-header", "H", false,
		formatFlagUsage(`Do not print the header line.`))

	queryCmd.SetUsageTemplate(usageTemplate("-d <k-mer file> {<k-mer> ... | -f <k-mers file>}"))
}
