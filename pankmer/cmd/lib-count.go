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
	"github.com/shenwei356/PanKmer/pankmer/cmd/counter"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kff"
	"github.com/shenwei356/PanKmer/pankmer/cmd/kmerdb"
	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/shenwei356/kmers"
)

// base2bit maps A, C, G, T (case-insensitive) to 2-bit codes,
// other symbols are marked with 4.
var base2bit = func() [256]uint8 {
	var t [256]uint8
	for i := range t {
		t[i] = 4
	}
	for i, b := range []byte("ACGT") {
		t[b] = uint8(i)
		t[b+32] = uint8(i)
	}
	return t
}()

// countKmers counts canonical k-mers of a sequence into m.
// Windows containing bases other than A, C, G, T are skipped.
// If only is not nil, k-mers absent from it are ignored.
func countKmers(s []byte, k int, m map[uint64]uint64, only map[uint64]interface{}) (n int) {
	if len(s) < k {
		return 0
	}

	k8 := uint8(k)
	mask := uint64(1)<<(k<<1) - 1
	var code, kmer uint64
	var v uint8
	var l int // length of the current valid window
	var ok bool
	for _, b := range s {
		v = base2bit[b]
		if v > 3 {
			l = 0
			continue
		}
		code = (code<<2 | uint64(v)) & mask
		l++
		if l < k {
			continue
		}

		kmer = util.Canonical(code, k8)
		if only != nil {
			if _, ok = only[kmer]; !ok {
				continue
			}
		}
		m[kmer]++
		n++
	}
	return n
}

// dataSizeOf returns the number of bytes needed to store the count.
func dataSizeOf(count uint64) int {
	switch {
	case count <= 0xff:
		return 1
	case count <= 0xffff:
		return 2
	case count <= 0xffffffff:
		return 4
	}
	return 8
}

// isKFFFile checks if the output should be written in the KFF format.
func isKFFFile(file string) bool {
	return counter.IsCompactFile(file)
}

// writeKmerFile writes k-mer counts into a k-mer database,
// or a KFF file if the file has a suffix of ".kff" or ".kff.gz".
// A dataSize of 0 means choosing it according to the maximum count.
// It returns the number of written k-mers.
func writeKmerFile(file string, k int, m map[uint64]uint64, dataSize int, canonical bool) (int, error) {
	if !isKFFFile(file) {
		_, err := kmerdb.WriteKmers(file, uint8(k), canonical, m)
		if err != nil {
			return 0, err
		}
		return len(m), nil
	}

	if dataSize == 0 {
		var max uint64
		for _, c := range m {
			if c > max {
				max = c
			}
		}
		dataSize = dataSizeOf(max)
	}

	wtr, err := kff.NewWriter(file, k, dataSize, canonical)
	if err != nil {
		return 0, err
	}
	for code, c := range m {
		err = wtr.Write(kmers.MustDecode(code, k), c)
		if err != nil {
			return 0, err
		}
	}
	return len(m), wtr.Close()
}

// outFileOf returns the default output file of an input file.
func outFileOf(file string) string {
	if isStdin(file) {
		return "stdin" + kmerdb.FileExt
	}
	name, _, _ := filepathTrimExtension(file, nil)
	return name + kmerdb.FileExt
}

// kmerFileK returns the k-mer size of a k-mer database or a KFF file.
func kmerFileK(file string) (int, error) {
	if isKFFFile(file) {
		rdr, err := kff.NewReader(file)
		if err != nil {
			return 0, err
		}
		defer rdr.Close()
		return rdr.K(), nil
	}

	rdr, err := kmerdb.NewReader(file)
	if err != nil {
		return 0, err
	}
	defer rdr.Close()
	return rdr.Header.K(), nil
}
