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

import "math/bits"

// PutUint64s encodes two uint64s into 2-16 bytes in big-endian, and returns
// the control byte and the encoded byte length.
//
// Control byte: the 3 lower bits store (byte length of v2) - 1, and the
// 3 bits before them store (byte length of v1) - 1. The two highest bits
// are left for callers to use as flags.
func PutUint64s(buf []byte, v1, v2 uint64) (ctrl byte, n int) {
	l1 := ByteLengthUint64(v1)
	l2 := ByteLengthUint64(v2)
	ctrl = (l1-1)<<3 | (l2 - 1)

	n = putBE(buf, v1, int(l1))
	n += putBE(buf[n:], v2, int(l2))
	return
}

func putBE(buf []byte, v uint64, l int) int {
	for i := l - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return l
}

// Uint64s decodes two uint64s, n is 0 if the buffer is too short.
func Uint64s(ctrl byte, buf []byte) (v1, v2 uint64, n int) {
	l1 := int(ctrl>>3&7) + 1
	l2 := int(ctrl&7) + 1
	if len(buf) < l1+l2 {
		return 0, 0, 0
	}
	for _, b := range buf[:l1] {
		v1 = v1<<8 | uint64(b)
	}
	for _, b := range buf[l1 : l1+l2] {
		v2 = v2<<8 | uint64(b)
	}
	return v1, v2, l1 + l2
}

// ByteLengthUint64 returns the minimum number of bytes to store a integer.
func ByteLengthUint64(n uint64) uint8 {
	if n == 0 {
		return 1
	}
	return uint8((bits.Len64(n) + 7) >> 3)
}

// CtrlByte2ByteLengthsUint64 returns the byte length for a given control byte.
func CtrlByte2ByteLengthsUint64(ctrl byte) int {
	return int(ctrl>>3&7+ctrl&7) + 2
}
