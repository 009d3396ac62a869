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
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
)

func mustCode(t *testing.T, kmer string) uint64 {
	code, err := util.Encode([]byte(kmer))
	if err != nil {
		t.Fatalf("encode %s: %s", kmer, err)
	}
	return util.Canonical(code, uint8(len(kmer)))
}

func TestCountKmers(t *testing.T) {
	k := 5
	m := make(map[uint64]uint64)

	// ACGTA/TACGT and CGTAC/GTACG are reverse complements
	n := countKmers([]byte("ACGTACGT"), k, m, nil)
	if n != 4 {
		t.Errorf("number of k-mers: expected %d, returned %d", 4, n)
	}
	if c := m[mustCode(t, "ACGTA")]; c != 2 {
		t.Errorf("count of ACGTA: expected %d, returned %d", 2, c)
	}
	if c := m[mustCode(t, "CGTAC")]; c != 2 {
		t.Errorf("count of CGTAC: expected %d, returned %d", 2, c)
	}

	// windows with N are skipped, lower case is accepted
	m = make(map[uint64]uint64)
	n = countKmers([]byte("acgtaNCCCCC"), k, m, nil)
	if n != 2 {
		t.Errorf("number of k-mers: expected %d, returned %d", 2, n)
	}
	if c := m[mustCode(t, "GGGGG")]; c != 1 {
		t.Errorf("count of CCCCC: expected %d, returned %d", 1, c)
	}

	// short sequences
	if n = countKmers([]byte("ACGT"), k, m, nil); n != 0 {
		t.Errorf("number of k-mers of a short sequence: expected 0, returned %d", n)
	}

	// restricted
	m = make(map[uint64]uint64)
	only := map[uint64]interface{}{mustCode(t, "CGTAC"): struct{}{}}
	n = countKmers([]byte("ACGTACGT"), k, m, only)
	if n != 2 || len(m) != 1 {
		t.Errorf("restricted counting: expected 2 k-mers, returned %d (%d distinct)", n, len(m))
	}
}

func TestDataSizeOf(t *testing.T) {
	for _, c := range []struct {
		count uint64
		size  int
	}{
		{0, 1}, {255, 1}, {256, 2}, {65535, 2}, {65536, 4}, {1 << 32, 8},
	} {
		if s := dataSizeOf(c.count); s != c.size {
			t.Errorf("data size of %d: expected %d, returned %d", c.count, c.size, s)
		}
	}
}

func TestWriteAndReadKmerFile(t *testing.T) {
	k := 5
	m := make(map[uint64]uint64)
	countKmers([]byte("ACGTACGTTTGCAAACCCGGGTTA"), k, m, nil)
	m[mustCode(t, "AAAAA")] = 1000

	dir := t.TempDir()
	for _, file := range []string{
		filepath.Join(dir, "t.kdb"),
		filepath.Join(dir, "t.kff"),
		filepath.Join(dir, "t.kff.gz"),
	} {
		n, err := writeKmerFile(file, k, m, 0, true)
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		if n != len(m) {
			t.Errorf("%s: expected %d k-mers written, returned %d", file, len(m), n)
		}

		k2, err := kmerFileK(file)
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		if k2 != k {
			t.Errorf("%s: k expected %d, returned %d", file, k, k2)
		}

		m2, k2, err := readKmerFile(file, 0, true)
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		if k2 != k || len(m2) != len(m) {
			t.Fatalf("%s: expected %d k-mers, returned %d", file, len(m), len(m2))
		}
		for code, c := range m {
			if m2[code] != c {
				t.Errorf("%s: count of %d: expected %d, returned %d", file, code, c, m2[code])
			}
		}

		// the files can be used by the counters
		cnt, err := counter.Open(file, k)
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		c, err := cnt.Abundance("AAAAA")
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		if c != 1000 {
			t.Errorf("%s: abundance of AAAAA: expected 1000, returned %d", file, c)
		}
		c, err = cnt.Abundance("TTTTT")
		if err != nil {
			t.Fatalf("%s: %s", file, err)
		}
		if c != 1000 {
			t.Errorf("%s: abundance of TTTTT: expected 1000, returned %d", file, c)
		}
	}

	if _, _, err := readKmerFile(filepath.Join(dir, "t.kdb"), 7, true); err == nil {
		t.Errorf("k-mer size mismatch should be reported")
	}
}

func TestOutFileOf(t *testing.T) {
	for _, c := range [][2]string{
		{"reads.fq.gz", "reads.kdb"},
		{"dir/genome.fasta", "dir/genome.kdb"},
		{"-", "stdin.kdb"},
	} {
		if f := outFileOf(c[0]); f != c[1] {
			t.Errorf("out file of %s: expected %s, returned %s", c[0], c[1], f)
		}
	}
}

func TestReadKmerDBCorruptNumber(t *testing.T) {
	k := 5
	m := make(map[uint64]uint64)
	countKmers([]byte("ACGTACGTTTGCAAACCCGGGTTA"), k, m, nil)

	file := filepath.Join(t.TempDir(), "t.kdb")
	if _, err := writeKmerFile(file, k, m, 0, true); err != nil {
		t.Fatal(err)
	}

	// overwrite the number of k-mers in the header
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	offset := len(kmerdb.Magic) + 8 + 2 + len(kmerdb.FormatSorted)
	binary.BigEndian.PutUint64(data[offset:], 1<<62)
	if err = os.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err = readKmerFile(file, k, true)
	if !errors.Is(err, kmerdb.ErrBrokenFile) {
		t.Errorf("corrupt number of k-mers should return ErrBrokenFile, returned %v", err)
	}
}

func numOpenFiles(t *testing.T) int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestReadKmerCountsClosesFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("open files are counted via /proc")
	}

	file := filepath.Join(t.TempDir(), "kmers.txt")
	if err := os.WriteFile(file, []byte("ACGTA\t1\nACG\t2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	n := numOpenFiles(t)
	for i := 0; i < 10; i++ {
		if _, err := readKmerCounts(file, 5); err == nil {
			t.Fatalf("k-mer of wrong size should be reported")
		}
	}
	if n2 := numOpenFiles(t); n2 != n {
		t.Errorf("open files: %d before, %d after", n, n2)
	}
}
