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

package kff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

var testKmers = map[string]uint64{
	"AAAAAAACGG": 1,
	"ATGCTGTAAA": 2,
	"CGTTTTTTTA": 300,
	"GTAAAAAAAC": 70000,
	"TGTAAAAAAA": 1 << 33,
}

func TestReadWrite(t *testing.T) {
	dir := t.TempDir()

	for _, dataSize := range []int{0, 1, 2, 4, 8} {
		for _, name := range []string{"t.kff", "t.kff.gz"} {
			file := filepath.Join(dir, name)

			wtr, err := NewWriter(file, 10, dataSize, true)
			if err != nil {
				t.Errorf("%s", err)
				return
			}
			for kmer, count := range testKmers {
				if err = wtr.Write([]byte(kmer), count); err != nil {
					t.Errorf("%s", err)
				}
			}
			if err = wtr.Close(); err != nil {
				t.Errorf("%s", err)
				return
			}

			rdr, err := NewReader(file)
			if err != nil {
				t.Errorf("%s", err)
				return
			}
			if rdr.K() != 10 || !rdr.Canonical || rdr.Encoding != DefaultEncoding {
				t.Errorf("unexpected header: %s, k=%d", rdr.Header, rdr.K())
			}

			var n int
			for {
				kmer, data, count, err := rdr.Next()
				if err != nil {
					if err != io.EOF {
						t.Errorf("%s", err)
					}
					break
				}
				n++

				expected, ok := testKmers[string(kmer)]
				if !ok {
					t.Errorf("unexpected k-mer: %s", kmer)
					continue
				}
				if len(data) != dataSize {
					t.Errorf("payload size: expected %d, returned %d", dataSize, len(data))
				}
				if dataSize < 8 {
					expected &= 1<<(dataSize<<3) - 1
				}
				if dataSize == 0 {
					expected = 0
				}
				if count != expected {
					t.Errorf("data size %d, %s: expected %d, returned %d", dataSize, kmer, expected, count)
				}
			}
			rdr.Close()

			if n != len(testKmers) {
				t.Errorf("#k-mers: expected %d, returned %d", len(testKmers), n)
			}
		}
	}
}

func TestPacking(t *testing.T) {
	// A=0, C=1, G=2, T=3, base i at bits (i%4)*2 of byte i/4
	file := filepath.Join(t.TempDir(), "t.kff")
	wtr, err := NewWriter(file, 5, 1, false)
	if err != nil {
		t.Errorf("%s", err)
		return
	}
	wtr.Write([]byte("ACGTC"), 1)
	wtr.Close()

	rec := wtr.buf.Bytes()
	if len(rec) != 3 {
		t.Errorf("record size: expected 3, returned %d", len(rec))
		return
	}
	if rec[0] != 0b11100100 || rec[1] != 0b00000001 || rec[2] != 1 {
		t.Errorf("unexpected packing: %08b", rec)
	}
}

func TestDecodingTable(t *testing.T) {
	table := DecodingTable(DefaultEncoding)
	if string(table[:]) != "ACGT" {
		t.Errorf("default decoding table: %s", table)
	}

	// A=3, C=2, G=1, T=0
	table = DecodingTable(0b11100100)
	if string(table[:]) != "TGCA" {
		t.Errorf("reversed decoding table: %s", table)
	}

	// A and C both mapped to 0, nothing mapped to 1
	table = DecodingTable(0b00001011)
	if string(table[:]) != "NNGT" {
		t.Errorf("non-bijective decoding table: %s", table)
	}
}

func TestCount(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	tests := []struct {
		n     int
		count uint64
	}{
		{0, 0},
		{1, 1},
		{2, 0x0201},
		{3, 0x0201},
		{4, 0x04030201},
		{7, 0x04030201},
		{8, 0x0807060504030201},
		{9, 0x0807060504030201},
	}
	for _, test := range tests {
		if c := Count(data[:test.n]); c != test.count {
			t.Errorf("data size %d: expected %x, returned %x", test.n, test.count, c)
		}
	}
}

func TestWrongK(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.kff")
	wtr, err := NewWriter(file, 10, 1, true)
	if err != nil {
		t.Errorf("%s", err)
		return
	}
	if err = wtr.Write([]byte("ACGT"), 1); err == nil {
		t.Errorf("k-mers of wrong size should be rejected")
	}
	if err = wtr.Write([]byte("ACGTNACGTA"), 1); err == nil {
		t.Errorf("k-mers with N should be rejected")
	}
	wtr.Close()

	if _, err = NewWriter(file, 0, 1, true); err != ErrKOverflow {
		t.Errorf("k = 0 should be rejected")
	}
}

// writeKChangedFile writes a file with two raw sections, one k-mer of
// "AAAA" (count 7) with k = 4 and one "AAAAAAAA" (count 9) with k = 8.
func writeKChangedFile(t *testing.T, file string) {
	var b bytes.Buffer
	b.Write(Magic[:])
	b.Write([]byte{MajorVersion, MinorVersion, DefaultEncoding, 1, 1})
	binary.Write(&b, be, uint32(0))

	vars := func(k uint64) {
		b.WriteByte(SectionVariables)
		binary.Write(&b, be, uint64(3))
		for _, v := range []struct {
			name  string
			value uint64
		}{{VarK, k}, {VarMax, 1}, {VarDataSize, 1}} {
			b.WriteString(v.name)
			b.WriteByte(0)
			binary.Write(&b, be, v.value)
		}
	}

	vars(4)
	b.WriteByte(SectionRaw)
	binary.Write(&b, be, uint64(1))
	b.Write([]byte{0, 7})

	vars(8)
	b.WriteByte(SectionRaw)
	binary.Write(&b, be, uint64(1))
	b.Write([]byte{0, 0, 9})

	b.Write(Magic[:])

	if err := os.WriteFile(file, b.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestKChanged(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.kff")
	writeKChangedFile(t, file)

	rdr, err := NewReader(file)
	if err != nil {
		t.Fatal(err)
	}
	defer rdr.Close()

	if rdr.K() != 4 {
		t.Errorf("k expected 4, returned %d", rdr.K())
	}

	kmer, _, count, err := rdr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(kmer) != "AAAA" || count != 7 {
		t.Errorf("expected AAAA 7, returned %s %d", kmer, count)
	}

	_, _, _, err = rdr.Next()
	if !errors.Is(err, ErrKChanged) {
		t.Errorf("redefined k should return ErrKChanged, returned %v", err)
	}
}
