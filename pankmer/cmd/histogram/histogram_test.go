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

package histogram

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func walkCounts(counts ...uint64) func(func(uint64)) error {
	return func(add func(uint64)) error {
		for _, c := range counts {
			add(c)
		}
		return nil
	}
}

func TestHistogram(t *testing.T) {
	h, err := New(5)
	if err != nil {
		t.Error(err)
		return
	}
	for _, c := range []uint64{0, 1, 1, 2, 5, 6, 100} {
		h.Add(c)
	}
	expected := []uint64{0, 2, 1, 0, 0, 1}
	for i, f := range expected {
		if h[i] != f {
			t.Errorf("slot %d: expected %d, returned %d", i, f, h[i])
		}
	}

	if _, err = New(0); err != ErrMaxCount {
		t.Errorf("max count 0 should be rejected")
	}
}

func TestSmooth(t *testing.T) {
	h := Histogram{0, 9, 0, 0, 3, 6}
	s := Smooth(h)
	expected := []float64{0, 4.5, 3, 1, 3, 4.5}
	if len(s) != len(h) {
		t.Errorf("size changed: %d", len(s))
		return
	}
	for i, v := range expected {
		if s[i] != v {
			t.Errorf("slot %d: expected %v, returned %v", i, v, s[i])
		}
	}
}

func TestPeaks(t *testing.T) {
	peaks := Peaks([]float64{0, 4.5, 3, 1, 3, 4.5})
	if len(peaks) != 2 || peaks[0].Abundance != 1 || peaks[1].Abundance != 5 {
		t.Errorf("unexpected peaks: %v", peaks)
	}

	// plateaus are not strict maxima
	if peaks = Peaks([]float64{0, 1, 3, 3, 1}); len(peaks) != 0 {
		t.Errorf("unexpected peaks: %v", peaks)
	}

	if peaks = Peaks([]float64{0, 0, 0}); len(peaks) != 0 {
		t.Errorf("unexpected peaks: %v", peaks)
	}

	if peaks = Peaks([]float64{0, 2}); len(peaks) != 1 || peaks[0].Abundance != 1 {
		t.Errorf("single bucket: unexpected peaks: %v", peaks)
	}
	if peaks = Peaks([]float64{0, 0}); len(peaks) != 0 {
		t.Errorf("single empty bucket: unexpected peaks: %v", peaks)
	}
}

func TestSelect(t *testing.T) {
	peaks := []Peak{{2, 10}, {15, 30}, {30, 10}, {45, 5}}

	p, err := Select(peaks, true)
	if err != nil || p.Abundance != 15 {
		t.Errorf("largest peak: %v, %v", p, err)
	}
	p, err = Select(peaks, false)
	if err != nil || p.Abundance != 2 {
		t.Errorf("second largest peak: %v, %v", p, err)
	}

	for _, largest := range []bool{true, false} {
		p, err = Select(peaks[:1], largest)
		if err != nil || p.Abundance != 2 {
			t.Errorf("single peak: %v, %v", p, err)
		}
	}

	// equal frequencies keep the order of abundances
	for _, test := range []struct {
		peaks    []Peak
		largest  int
		secondly int
	}{
		{[]Peak{{1, 5}, {2, 3}, {3, 5}}, 1, 3},
		{[]Peak{{1, 3}, {2, 4}, {3, 5}, {4, 5}}, 3, 4},
	} {
		p, _ = Select(test.peaks, true)
		if p.Abundance != test.largest {
			t.Errorf("largest peak of %v: expected %d, returned %d", test.peaks, test.largest, p.Abundance)
		}
		p, _ = Select(test.peaks, false)
		if p.Abundance != test.secondly {
			t.Errorf("second largest peak of %v: expected %d, returned %d", test.peaks, test.secondly, p.Abundance)
		}
	}

	if _, err = Select(nil, true); err != ErrNoPeak {
		t.Errorf("no peaks should return ErrNoPeak")
	}
}

func TestEstimate(t *testing.T) {
	counts := []uint64{1, 1, 1, 1, 1, 1, 1, 1, 1}

	for _, largest := range []bool{true, false} {
		e, _, err := Estimate(walkCounts(counts...), 10000, largest, "")
		if err != nil {
			t.Error(err)
			return
		}
		if e != 1 {
			t.Errorf("expected 1, returned %d", e)
		}
	}

	_, _, err := Estimate(walkCounts(), 10000, true, "")
	if !errors.Is(err, ErrNoPeak) {
		t.Errorf("empty counts should return ErrNoPeak, returned %v", err)
	}
}

func TestEstimateOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "histo.txt")

	e, _, err := Estimate(walkCounts(1, 1, 1), 4, true, file)
	if err != nil {
		t.Error(err)
		return
	}
	if e != 1 {
		t.Errorf("expected 1, returned %d", e)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Error(err)
		return
	}
	expected := "0\n3\n0\n0\n0\nparameters\t0.5\t1\n"
	if string(data) != expected {
		t.Errorf("unexpected histogram file:\n%s", data)
	}

	// missing directories are created, but a regular file can not be one
	_, _, err = Estimate(walkCounts(1), 4, true, filepath.Join(t.TempDir(), "a", "b", "h.txt"))
	if err != nil {
		t.Errorf("missing directories should be created, returned %v", err)
	}
	_, _, err = Estimate(walkCounts(1), 4, true, filepath.Join(file, "h.txt"))
	if !errors.Is(err, ErrOutput) {
		t.Errorf("unwritable file should return ErrOutput, returned %v", err)
	}
}

func TestAppendParameters(t *testing.T) {
	var b strings.Builder
	AppendParameters(&b, 15)
	if b.String() != "parameters\t7.5\t15\n" {
		t.Errorf("unexpected line: %q", b.String())
	}
}
