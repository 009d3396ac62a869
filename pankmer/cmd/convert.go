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

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kff"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert k-mer counts between text, k-mer database and KFF formats",
	Long: `Convert k-mer counts between text, k-mer database and KFF formats

Input format is detected by the file suffix:
  .kdb             k-mer database created by "pankmer count".
  .kff, .kff.gz    KFF file.
  others           tab-delimited text file with two columns: k-mer and count.
                   A line with only a k-mer is counted once.

Output format is also decided by the suffix of -o/--out-file.

Attentions:
  1. K-mers are saved in their canonical forms, counts of a k-mer and its
     reverse complement are summed, unless --no-canonical is given.
  2. K-mers containing bases other than A, C, G, T are not allowed.

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

		// ---------------------------------------------------------------

		k := getFlagNonNegativeInt(cmd, "kmer")
		outFile := expandPath(getFlagString(cmd, "out-file"))
		if outFile == "" {
			checkError(fmt.Errorf("flag -o/--out-file needed"))
		}
		canonical := !getFlagBool(cmd, "no-canonical")
		dataSize := getFlagNonNegativeInt(cmd, "data-size")
		if dataSize > 8 {
			checkError(fmt.Errorf("the value of flag --data-size should be in the range of [0, 8]"))
		}

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if len(files) > 1 {
			checkError(fmt.Errorf("only one input file is allowed"))
		}
		file := files[0]

		if k > 0 {
			checkK(k)
		} else if !isKFFFile(file) && !strings.HasSuffix(file, kmerdb.FileExt) {
			checkError(fmt.Errorf("flag -k/--kmer needed for text input"))
		}

		// ---------------------------------------------------------------

		m, k, err := readKmerFile(file, k, canonical)
		checkError(err)

		if outputLog {
			log.Infof("%s distinct %d-mers read from %s", humanize.Comma(int64(len(m))), k, file)
		}

		n, err := writeKmerFile(outFile, k, m, dataSize, canonical)
		checkError(err)

		if outputLog {
			log.Infof("%s k-mers saved to %s", humanize.Comma(int64(n)), outFile)
		}
	},
}

func init() {
	utilsCmd.AddCommand(convertCmd)

	convertCmd.Flags().IntP("kmer", "k", 0,
		formatFlagUsage(`K-mer size, needed for text input. For binary input, it's checked if given.`))

	convertCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Out file, with a suffix of ".kdb", or ".kff"/".kff.gz" for the KFF format.`))

	convertCmd.Flags().IntP("data-size", "", 0,
		formatFlagUsage(`Bytes to store a count in KFF files (0 for automatically choosing).`))

	convertCmd.Flags().BoolP("no-canonical", "", false,
		formatFlagUsage(`Keep k-mers as they are, instead of converting them to canonical forms. `+
			`Such files can not be used by "pankmer histo" or "pankmer query".`))

	convertCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line).`))

	convertCmd.SetUsageTemplate(usageTemplate("-o <out file> [-k <k>] <input file>"))
}

// readKmerFile reads k-mers in any supported format and returns the counts
// of k-mers and the k-mer size. k is checked if it's not 0.
// K-mers are converted to their canonical forms if canonical is true.
func readKmerFile(file string, k int, canonical bool) (map[uint64]uint64, int, error) {
	switch {
	case isKFFFile(file):
		return readKFF(file, k, canonical)
	case strings.HasSuffix(file, kmerdb.FileExt):
		return readKmerDB(file, k, canonical)
	}

	m0, err := readKmerCounts(file, k)
	if err != nil {
		return nil, 0, err
	}
	m := make(map[uint64]uint64, len(m0))
	var code uint64
	for kmer, c := range m0 {
		code, err = util.Encode([]byte(kmer))
		if err != nil {
			return nil, 0, errors.Wrap(err, kmer)
		}
		if canonical {
			code = util.Canonical(code, uint8(k))
		}
		m[code] += c
	}
	return m, k, nil
}

func readKmerDB(file string, k int, canonical bool) (map[uint64]uint64, int, error) {
	rdr, err := kmerdb.NewReader(file)
	if err != nil {
		return nil, 0, err
	}
	defer rdr.Close()

	k0 := rdr.Header.K()
	if k > 0 && k != k0 {
		return nil, 0, fmt.Errorf("k-mer size mismatch: %d (file) != %d", k0, k)
	}
	k8 := uint8(k0)

	m := make(map[uint64]uint64, mapInitSize)
	err = rdr.Walk(func(code, count uint64) bool {
		if canonical && !rdr.Canonical {
			code = util.Canonical(code, k8)
		}
		m[code] += count
		return false
	})
	if err != nil {
		return nil, 0, err
	}
	return m, k0, nil
}

func readKFF(file string, k int, canonical bool) (map[uint64]uint64, int, error) {
	rdr, err := kff.NewReader(file)
	if err != nil {
		return nil, 0, err
	}
	defer rdr.Close()

	k0 := rdr.K()
	if k > 0 && k != k0 {
		return nil, 0, fmt.Errorf("k-mer size mismatch: %d (file) != %d", k0, k)
	}
	k8 := uint8(k0)

	m := make(map[uint64]uint64, mapInitSize)
	var kmer []byte
	var count, code uint64
	for {
		kmer, _, count, err = rdr.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, err
		}
		code, err = util.Encode(kmer)
		if err != nil {
			return nil, 0, errors.Wrap(err, string(kmer))
		}
		if canonical {
			code = util.Canonical(code, k8)
		}
		m[code] += count
	}
	return m, k0, nil
}
