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
	"strconv"
	"strings"
	"time"

	"github.com/shenwei356/PanKmer/pankmer/cmd/sampler"
	"github.com/spf13/cobra"
)

var subsetsCmd = &cobra.Command{
	Use:   "subsets",
	Short: "Show how paths of a pangenome panel are partitioned for genotyping",
	Long: `Show how paths of a pangenome panel are partitioned for genotyping

Paths are shuffled with a fixed seed, so that neighbouring paths (e.g., the
two haplotypes of a sample) are likely put into different subsets. The result
is the same for the same number of paths.

Output (tab-delimited):
  task, subset, #paths, paths (0-based, comma-separated)

  Genotyping subsets are numbered from 1, the phasing subset is numbered 0.

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

		nPaths := getFlagPositiveInt(cmd, "paths")
		size := getFlagNonNegativeInt(cmd, "size")
		phasing := getFlagBool(cmd, "phasing")
		genotyping := !getFlagBool(cmd, "no-genotyping")
		if !phasing && !genotyping {
			checkError(fmt.Errorf("nothing to do with --no-genotyping but no --phasing"))
		}

		// ---------------------------------------------------------------

		s, err := sampler.New(nPaths)
		checkError(err)

		if size == 0 {
			size = sampler.SubsetSize(nPaths)
		}
		if outputLog {
			log.Infof("%d paths, subset size: %d", nPaths, size)
		}

		fmt.Printf("task\tsubset\tpaths\tpath_ids\n")

		if phasing {
			fmt.Printf("phasing\t0\t%s\n", formatPaths(s.PhasingSubset()))
		}
		if genotyping {
			subsets, err := s.Partition(size)
			checkError(err)
			for i, subset := range subsets {
				fmt.Printf("genotyping\t%d\t%s\n", i+1, formatPaths(subset))
			}
			if outputLog {
				log.Infof("%d genotyping subsets", len(subsets))
			}
		}
	},
}

func formatPaths(paths []int) string {
	ids := make([]string, len(paths))
	for i, p := range paths {
		ids[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d\t%s", len(paths), strings.Join(ids, ","))
}

func init() {
	utilsCmd.AddCommand(subsetsCmd)

	subsetsCmd.Flags().IntP("paths", "n", 0,
		formatFlagUsage(`Number of paths in the panel.`))

	subsetsCmd.Flags().IntP("size", "s", 0,
		formatFlagUsage(fmt.Sprintf(`Number of paths in a genotyping subset. `+
			`By default, it's %d for panels with more than %d paths, or all the paths.`,
			sampler.DefaultSubsetSize, sampler.LargePanel)))

	subsetsCmd.Flags().BoolP("phasing", "p", false,
		formatFlagUsage(fmt.Sprintf(`Also show the phasing subset, with at most %d paths.`, sampler.MaxPhasingPaths)))

	subsetsCmd.Flags().BoolP("no-genotyping", "G", false,
		formatFlagUsage(`Do not show genotyping subsets.`))

	subsetsCmd.SetUsageTemplate(usageTemplate("-n <#paths> [-s <size>] [-p]"))
}
