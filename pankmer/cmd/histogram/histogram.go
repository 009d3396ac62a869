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

// Package histogram estimates k-mer coverage from the abundance histogram.
//
// The estimation is composed of pure steps:
//
//	counts -> Histogram -> Smooth -> Peaks -> Select
package histogram

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/shenwei356/xopen"
)

// ErrNoPeak means no local maximum is found in the smoothed histogram.
var ErrNoPeak = errors.New("histogram: no peak found in k-mer count histogram")

// ErrOutput means the histogram file can not be created or written.
var ErrOutput = errors.New("histogram: failed to write histogram file")

// ErrMaxCount means the max count is smaller than 1.
var ErrMaxCount = errors.New("histogram: max count should be >= 1")

// Histogram stores the number of k-mers of each abundance in [0, maxCount].
// Slot 0 is always 0.
type Histogram []uint64

// New creates a histogram of size maxCount+1.
func New(maxCount int) (Histogram, error) {
	if maxCount < 1 {
		return nil, ErrMaxCount
	}
	return make(Histogram, maxCount+1), nil
}

// MaxCount returns the largest abundance tracked.
func (h Histogram) MaxCount() int {
	return len(h) - 1
}

// Add records a k-mer count. Zero counts and those larger than the max
// count are ignored.
func (h Histogram) Add(count uint64) {
	if count == 0 || count >= uint64(len(h)) {
		return
	}
	h[count]++
}

// Write outputs one frequency per line for abundances 0..maxCount.
func (h Histogram) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 20)
	for _, f := range h {
		buf = strconv.AppendUint(buf[:0], f, 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Smooth returns a smoothed copy. Each bucket in [1, maxCount] is replaced
// by the mean of itself and its immediate neighbours, boundary buckets use
// their single neighbour. Slot 0 is not used.
func Smooth(h Histogram) []float64 {
	s := make([]float64, len(h))
	n := len(h) - 1
	if n < 1 {
		return s
	}
	if n == 1 {
		s[1] = float64(h[1])
		return s
	}

	s[1] = float64(h[1]+h[2]) / 2
	for i := 2; i < n; i++ {
		s[i] = float64(h[i-1]+h[i]+h[i+1]) / 3
	}
	s[n] = float64(h[n-1]+h[n]) / 2
	return s
}

// Peak is a local maximum of a histogram.
type Peak struct {
	Abundance int
	Frequency float64
}

func (p Peak) String() string {
	return fmt.Sprintf("%d (%s)", p.Abundance, strconv.FormatFloat(p.Frequency, 'f', -1, 64))
}

// Peaks returns all strict local maxima in [1, maxCount] in increasing
// abundance order. Boundary buckets are compared with their single
// neighbour. A histogram with a single bucket has a peak if the bucket
// is not empty.
func Peaks(s []float64) []Peak {
	n := len(s) - 1
	if n < 1 {
		return nil
	}
	if n == 1 {
		if s[1] > 0 {
			return []Peak{{Abundance: 1, Frequency: s[1]}}
		}
		return nil
	}

	peaks := make([]Peak, 0, 4)
	var left, right bool
	for i := 1; i <= n; i++ {
		left = i == 1 || s[i] > s[i-1]
		right = i == n || s[i] > s[i+1]
		if left && right {
			peaks = append(peaks, Peak{Abundance: i, Frequency: s[i]})
		}
	}
	return peaks
}

// Select returns the peak with the largest frequency if preferLargest is
// true, or the second largest one otherwise. Ties are broken by the order
// of peaks. With only one peak, it is returned regardless of preferLargest.
func Select(peaks []Peak, preferLargest bool) (Peak, error) {
	switch len(peaks) {
	case 0:
		return Peak{}, ErrNoPeak
	case 1:
		return peaks[0], nil
	}

	sorted := make([]Peak, len(peaks))
	copy(sorted, peaks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Frequency > sorted[j].Frequency
	})

	if preferLargest {
		return sorted[0], nil
	}
	return sorted[1], nil
}

// AppendParameters writes the line of expected abundances:
// "parameters\t<estimate/2>\t<estimate>".
func AppendParameters(w io.Writer, estimate uint64) error {
	_, err := fmt.Fprintf(w, "parameters\t%s\t%d\n",
		strconv.FormatFloat(float64(estimate)/2, 'f', -1, 64), estimate)
	return err
}

// Estimate builds a histogram from counts walked by walk, and returns the
// abundance of the selected peak. If outFile is not empty, the raw
// histogram is written to it, followed by the parameters line once a peak
// is selected.
func Estimate(walk func(add func(count uint64)) error, maxCount int, preferLargest bool, outFile string) (uint64, []Peak, error) {
	h, err := New(maxCount)
	if err != nil {
		return 0, nil, err
	}

	err = walk(h.Add)
	if err != nil {
		return 0, nil, err
	}

	var outfh *xopen.Writer
	if outFile != "" {
		outfh, err = xopen.Wopen(outFile)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s: %w", ErrOutput, outFile, err)
		}
		defer func() {
			if outfh != nil {
				outfh.Close()
			}
		}()

		if err = h.Write(outfh); err != nil {
			return 0, nil, fmt.Errorf("%w: %s: %w", ErrOutput, outFile, err)
		}
	}

	peaks := Peaks(Smooth(h))
	p, err := Select(peaks, preferLargest)
	if err != nil {
		return 0, peaks, err
	}
	estimate := uint64(p.Abundance)

	if outfh != nil {
		if err = AppendParameters(outfh, estimate); err != nil {
			return 0, peaks, fmt.Errorf("%w: %s: %w", ErrOutput, outFile, err)
		}
		err = outfh.Close()
		outfh = nil
		if err != nil {
			return 0, peaks, fmt.Errorf("%w: %s: %w", ErrOutput, outFile, err)
		}
	}

	return estimate, peaks, nil
}
