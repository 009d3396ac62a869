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

package util

import (
	"errors"

	"github.com/shenwei356/kmers"
)

// ErrIllegalBase means a k-mer contains a symbol other than A, C, G, T.
var ErrIllegalBase = errors.New("kmer: illegal base")

// ErrKOverflow means K < 1 or K > 32.
var ErrKOverflow = errors.New("kmer: k-mer size [1, 32] overflow")

// acgt marks bases allowed in a k-mer, case-insensitively.
var acgt = [256]bool{'A': true, 'C': true, 'G': true, 'T': true,
	'a': true, 'c': true, 'g': true, 't': true}

// IsACGT checks if all bases of a sequence are A, C, G or T.
func IsACGT(s []byte) bool {
	for _, b := range s {
		if !acgt[b] {
			return false
		}
	}
	return true
}

// Encode converts a k-mer into its 2-bit code (A=0, C=1, G=2, T=3, the
// first base in the highest bits). Unlike kmers.Encode, degenerate bases
// are rejected instead of being folded to a concrete base.
func Encode(kmer []byte) (uint64, error) {
	if len(kmer) == 0 || len(kmer) > 32 {
		return 0, ErrKOverflow
	}
	if !IsACGT(kmer) {
		return 0, ErrIllegalBase
	}
	return kmers.Encode(kmer)
}

// RevComp returns the code of the reverse complement sequence.
func RevComp(code uint64, k uint8) (c uint64) {
	code = ^code // complement: A<->T, C<->G
	var i uint8
	for i = 0; i < k; i++ {
		c = (c << 2) | (code & 3)
		code >>= 2
	}
	return
}

// Canonical returns the smaller one of a k-mer code and the code of its
// reverse complement. With the 2-bit encoding, the numerical order of codes
// equals the lexicographic order of the sequences.
func Canonical(code uint64, k uint8) uint64 {
	rc := RevComp(code, k)
	if rc < code {
		return rc
	}
	return code
}

// IsCanonical checks if a k-mer code is in its canonical form.
func IsCanonical(code uint64, k uint8) bool {
	return code <= RevComp(code, k)
}

// CanonicalKmer returns the canonical form of a k-mer in upper case.
// The second returned value is false for k-mers containing bases other
// than A, C, G, T, or longer than 32 bp, which have no canonical form.
func CanonicalKmer(kmer []byte) ([]byte, bool) {
	code, err := Encode(kmer)
	if err != nil {
		return nil, false
	}
	k := len(kmer)
	return kmers.MustDecode(Canonical(code, uint8(k)), k), true
}

// KmerBaseAt returns the base in pos i (0-based).
func KmerBaseAt(code uint64, k uint8, i uint8) uint8 {
	return uint8(code >> ((k - i - 1) << 1) & 3)
}
