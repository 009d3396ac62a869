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
	"testing"

	"github.com/shenwei356/kmers"
)

func TestRevComp(t *testing.T) {
	tests := [][2]string{
		{"ACGTT", "AACGT"},
		{"AAAAAAACGG", "CCGTTTTTTT"},
		{"A", "T"},
		{"GC", "GC"},
	}
	for _, test := range tests {
		code, err := Encode([]byte(test[0]))
		if err != nil {
			t.Error(err)
			return
		}
		k := len(test[0])
		rc := kmers.MustDecode(RevComp(code, uint8(k)), k)
		if string(rc) != test[1] {
			t.Errorf("revcomp of %s: expected %s, returned %s", test[0], test[1], rc)
		}
	}
}

func TestCanonicalKmer(t *testing.T) {
	tests := [][2]string{
		{"CCGTTTTTTT", "AAAAAAACGG"},
		{"AAAAAAACGG", "AAAAAAACGG"},
		{"tttttttttt", "AAAAAAAAAA"},
		{"ACGT", "ACGT"}, // palindrome
	}
	for _, test := range tests {
		c, ok := CanonicalKmer([]byte(test[0]))
		if !ok {
			t.Errorf("%s should have a canonical form", test[0])
			continue
		}
		if string(c) != test[1] {
			t.Errorf("canonical form of %s: expected %s, returned %s", test[0], test[1], c)
		}
	}

	if _, ok := CanonicalKmer([]byte("ACGNT")); ok {
		t.Errorf("k-mers with N should have no canonical form")
	}
	if _, ok := CanonicalKmer([]byte("")); ok {
		t.Errorf("empty k-mers should have no canonical form")
	}
}

func TestKmerBaseAt(t *testing.T) {
	mer := "ACGTTGCA"
	code, _ := Encode([]byte(mer))
	k := uint8(len(mer))
	bases := "ACGT"
	for i := uint8(0); i < k; i++ {
		if b := bases[KmerBaseAt(code, k, i)]; b != mer[i] {
			t.Errorf("base #%d: expected %c, returned %c", i, mer[i], b)
		}
	}
}
