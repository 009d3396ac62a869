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

// Package kmerdb implements a sorted k-mer count database file,
// the associative counting backend.
package kmerdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/shenwei356/xopen"
	"github.com/twotwotwo/sorts/sortutil"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'.', 'k', 'm', 'e', 'r', '-', 'd', 'b'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// FormatSorted is the only record layout supported for now:
// k-mer codes in ascending order, stored as deltas.
const FormatSorted = "binary/sorted"

// FileExt is the file extension of a k-mer database.
const FileExt = ".kdb"

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("k-mer db: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("k-mer db: broken file")

// ErrKOverflow means K < 1 or K > 32.
var ErrKOverflow = errors.New("k-mer db: k-mer size [1, 32] overflow")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("k-mer db: version mismatch")

// ErrUnsortedKmers means k-mers are not written in ascending order.
var ErrUnsortedKmers = errors.New("k-mer db: k-mers should be sorted in ascending order")

// ErrUnsupportedFormat means the record layout is unknown.
var ErrUnsupportedFormat = errors.New("k-mer db: unsupported record format")

// ErrNumberMismatch means the number of written k-mers differs from the header.
var ErrNumberMismatch = errors.New("k-mer db: number of k-mers mismatch")

// Header of a k-mer database.
//
//	Magic number, 8 bytes, ".kmer-db".
//	Main and minor versions, 2 bytes.
//	Key length in bits (2*k), 1 byte.
//	Canonical flag, 1 byte. 1 for canonical k-mers.
//	Blank, 4 bytes.
//	Format tag length, 2 bytes.
//	Format tag, e.g., "binary/sorted".
//	Number of k-mers, 8 bytes.
//
// Records (FormatSorted):
//
//	Control byte, 1 byte.
//	Delta of the k-mer code and the count, 2-16 bytes.
type Header struct {
	MainVersion  uint8
	MinorVersion uint8
	KeyBits      uint8
	Canonical    bool
	Format       string
	NKmers       uint64
}

// K returns the k-mer size.
func (h Header) K() int {
	return int(h.KeyBits >> 1)
}

func (h Header) String() string {
	return fmt.Sprintf("k-mer db v%d.%d: k=%d, canonical=%v, format=%s, #k-mers=%d",
		h.MainVersion, h.MinorVersion, h.K(), h.Canonical, h.Format, h.NKmers)
}

// Writer writes k-mer codes and counts to a database.
type Writer struct {
	Header

	N int // the number of bytes.

	fh *xopen.Writer

	buf    []byte
	bufVar []byte

	hasPrev bool
	prev    uint64
	written uint64
}

// NewWriter creates a writer. Files with the suffix ".gz" are gzipped.
func NewWriter(file string, k uint8, canonical bool, nKmers uint64) (*Writer, error) {
	if k < 1 || k > 32 {
		return nil, ErrKOverflow
	}

	fh, err := xopen.Wopen(file)
	if err != nil {
		return nil, err
	}

	wtr := &Writer{
		Header: Header{
			MainVersion:  MainVersion,
			MinorVersion: MinorVersion,
			KeyBits:      k << 1,
			Canonical:    canonical,
			Format:       FormatSorted,
			NKmers:       nKmers,
		},
		fh:     fh,
		buf:    make([]byte, 17),
		bufVar: make([]byte, 16),
	}

	var N int

	// 8-byte magic number
	err = binary.Write(fh, be, Magic)
	if err != nil {
		return nil, err
	}
	N += 8

	// 8-byte meta info
	var flag uint8
	if canonical {
		flag = 1
	}
	err = binary.Write(fh, be, [8]uint8{MainVersion, MinorVersion, k << 1, flag})
	if err != nil {
		return nil, err
	}
	N += 8

	// format tag
	err = binary.Write(fh, be, uint16(len(FormatSorted)))
	if err != nil {
		return nil, err
	}
	_, err = fh.Write([]byte(FormatSorted))
	if err != nil {
		return nil, err
	}
	N += 2 + len(FormatSorted)

	// 8-byte the number of k-mers
	err = binary.Write(fh, be, nKmers)
	if err != nil {
		return nil, err
	}
	N += 8

	wtr.N = N
	return wtr, nil
}

// Write writes a k-mer code and its count. Codes must be given in
// ascending order without duplicates.
func (wtr *Writer) Write(code, count uint64) error {
	if wtr.hasPrev && code <= wtr.prev {
		return ErrUnsortedKmers
	}
	if wtr.written == wtr.NKmers {
		return ErrNumberMismatch
	}

	ctrl, n := util.PutUint64s(wtr.bufVar, code-wtr.prev, count)
	wtr.buf[0] = ctrl
	copy(wtr.buf[1:], wtr.bufVar[:n])
	_, err := wtr.fh.Write(wtr.buf[:n+1])
	if err != nil {
		return err
	}
	wtr.N += n + 1

	wtr.prev = code
	wtr.hasPrev = true
	wtr.written++
	return nil
}

// Close is very important
func (wtr *Writer) Close() error {
	err := wtr.fh.Close()
	if err != nil {
		return err
	}
	if wtr.written != wtr.NKmers {
		return ErrNumberMismatch
	}
	return nil
}

// WriteKmers writes k-mers and their counts to a file, returning
// the number of bytes.
func WriteKmers(file string, k uint8, canonical bool, m map[uint64]uint64) (int, error) {
	codes := make([]uint64, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sortutil.Uint64s(codes)

	wtr, err := NewWriter(file, k, canonical, uint64(len(codes)))
	if err != nil {
		return 0, err
	}
	for _, code := range codes {
		err = wtr.Write(code, m[code])
		if err != nil {
			return 0, err
		}
	}
	err = wtr.Close()
	if err != nil {
		return 0, err
	}
	return wtr.N, nil
}

// Reader reads k-mer codes and counts from a database.
type Reader struct {
	Header

	fh *xopen.Reader

	buf  []byte
	buf8 []byte

	prev uint64
	read uint64
}

// NewReader opens a database and parses the header.
func NewReader(file string) (*Reader, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}

	rdr := &Reader{
		fh:   fh,
		buf:  make([]byte, 16),
		buf8: make([]byte, 8),
	}

	err = rdr.readHeader()
	if err != nil {
		fh.Close()
		return nil, err
	}
	return rdr, nil
}

func (rdr *Reader) readHeader() error {
	buf := rdr.buf8
	r := rdr.fh

	// check the magic number
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return ErrInvalidFileFormat
		}
		return ErrBrokenFile
	}
	if [8]byte(buf) != Magic {
		return ErrInvalidFileFormat
	}

	// read version information
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return ErrBrokenFile
	}
	if MainVersion != buf[0] {
		return ErrVersionMismatch
	}
	rdr.MainVersion = buf[0]
	rdr.MinorVersion = buf[1]
	rdr.KeyBits = buf[2]
	rdr.Canonical = buf[3] > 0
	if rdr.KeyBits < 2 || rdr.KeyBits > 64 || rdr.KeyBits&1 != 0 {
		return ErrKOverflow
	}

	// format tag
	_, err = io.ReadFull(r, buf[:2])
	if err != nil {
		return ErrBrokenFile
	}
	format := make([]byte, be.Uint16(buf[:2]))
	_, err = io.ReadFull(r, format)
	if err != nil {
		return ErrBrokenFile
	}
	rdr.Format = string(format)

	// the number of k-mers
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return ErrBrokenFile
	}
	rdr.NKmers = be.Uint64(buf)

	return nil
}

// Read returns the next k-mer code and its count, and io.EOF after
// the last record.
func (rdr *Reader) Read() (code, count uint64, err error) {
	if rdr.Format != FormatSorted {
		return 0, 0, ErrUnsupportedFormat
	}
	if rdr.read == rdr.NKmers {
		return 0, 0, io.EOF
	}

	buf := rdr.buf
	_, err = io.ReadFull(rdr.fh, buf[:1])
	if err != nil {
		return 0, 0, ErrBrokenFile
	}
	ctrl := buf[0]

	nBytes := util.CtrlByte2ByteLengthsUint64(ctrl)
	_, err = io.ReadFull(rdr.fh, buf[:nBytes])
	if err != nil {
		return 0, 0, ErrBrokenFile
	}

	delta, count, n := util.Uint64s(ctrl, buf[:nBytes])
	if n == 0 {
		return 0, 0, ErrBrokenFile
	}

	code = rdr.prev + delta
	rdr.prev = code
	rdr.read++
	return code, count, nil
}

// Walk reads all the remaining records and calls f for each of them.
// It stops early if f returns true.
func (rdr *Reader) Walk(f func(code, count uint64) bool) error {
	var code, count uint64
	var err error
	for {
		code, count, err = rdr.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if f(code, count) {
			return nil
		}
	}
}

// Close closes the reader.
func (rdr *Reader) Close() error {
	return rdr.fh.Close()
}
