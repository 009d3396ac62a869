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

// Package kff reads and writes a compact k-mer counting container in the
// spirit of the k-mer File Format (KFF): 2-bit packed k-mers, each followed
// by a fixed-size little-endian count payload.
package kff

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shenwei356/PanKmer/pankmer/cmd/util"
	"github.com/shenwei356/xopen"
)

var be = binary.BigEndian
var le = binary.LittleEndian

// Magic number at the beginning and the end of a file.
var Magic = [3]byte{'K', 'F', 'F'}

// MajorVersion is use for checking compatibility
var MajorVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// FileExt is the file extension of a KFF file.
const FileExt = ".kff"

// DefaultEncoding maps A, C, G, T to 0, 1, 2, 3.
const DefaultEncoding uint8 = 0b00011011

// Section types.
const (
	SectionVariables = 'v'
	SectionRaw       = 'r'
)

// Names of global variables.
const (
	VarK        = "k"
	VarMax      = "max"
	VarDataSize = "data_size"
)

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("kff: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("kff: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("kff: version mismatch")

// ErrKOverflow means K < 1 or K > 32.
var ErrKOverflow = errors.New("kff: k-mer size [1, 32] overflow")

// ErrDataSize means the data size is not in [0, 8].
var ErrDataSize = errors.New("kff: data size [0, 8] overflow")

// ErrVarMissing means a required global variable is not defined before
// a raw section.
var ErrVarMissing = errors.New("kff: global variable missing")

// ErrKChanged means a later variable section redefines k.
var ErrKChanged = errors.New("kff: k-mer size changed between sections")

// ErrUnsupportedSection means a section type other than 'v' and 'r'.
var ErrUnsupportedSection = errors.New("kff: unsupported section")

// Header of a KFF file.
//
//	Magic number, 3 bytes, "KFF".
//	Major and minor versions, 2 bytes.
//	Encoding, 1 byte. 2 bits for each of A, C, G, T, from high to low.
//	Uniqueness flag, 1 byte.
//	Canonicity flag, 1 byte.
//	Metadata length, 4 bytes.
//	Metadata, variable length.
//
// Sections, the first byte is the section type:
//
//	'v': number of variables (8 bytes), then for each variable
//	     a name terminated with '\0' and the value (8 bytes).
//	'r': number of blocks (8 bytes), then for each block one k-mer,
//	     ceil(k/4) bytes, base i stored at bits (i%4)*2 of byte i/4,
//	     followed by data_size bytes of count in little-endian.
//
// The file ends with the magic number.
type Header struct {
	MajorVersion uint8
	MinorVersion uint8
	Encoding     uint8
	Unique       bool
	Canonical    bool
	Metadata     []byte
}

func (h Header) String() string {
	return fmt.Sprintf("KFF v%d.%d: encoding=%08b, unique=%v, canonical=%v",
		h.MajorVersion, h.MinorVersion, h.Encoding, h.Unique, h.Canonical)
}

// DecodingTable returns the base of each 2-bit value. Values not
// mapped by exactly one base are decoded to 'N'.
func DecodingTable(encoding uint8) [4]byte {
	var claims [4]int
	var table [4]byte
	for i, b := range []byte("ACGT") {
		v := encoding >> (6 - 2*i) & 3
		claims[v]++
		table[v] = b
	}
	for v := range table {
		if claims[v] != 1 {
			table[v] = 'N'
		}
	}
	return table
}

// EncodingTable returns the 2-bit value of each of A, C, G, T.
func EncodingTable(encoding uint8) [4]uint8 {
	return [4]uint8{encoding >> 6 & 3, encoding >> 4 & 3, encoding >> 2 & 3, encoding & 3}
}

// PackedSize returns the number of bytes of a packed k-mer.
func PackedSize(k int) int {
	return (k + 3) >> 2
}

// Count decodes a count from a little-endian payload, the width is the
// largest one of 8, 4, 2 and 1 bytes not exceeding the data size.
func Count(data []byte) uint64 {
	switch n := len(data); {
	case n >= 8:
		return le.Uint64(data)
	case n >= 4:
		return uint64(le.Uint32(data))
	case n >= 2:
		return uint64(le.Uint16(data))
	case n >= 1:
		return uint64(data[0])
	}
	return 0
}

// Writer writes k-mers and counts to a KFF file with one variable section
// and one raw section.
type Writer struct {
	Header

	k        int
	dataSize int

	fh *xopen.Writer

	codes [4]uint8
	buf   bytes.Buffer // records of the raw section
	rec   []byte
	n     uint64
}

// NewWriter creates a writer with the default encoding. Files with the
// suffix ".gz" are gzipped.
func NewWriter(file string, k int, dataSize int, canonical bool) (*Writer, error) {
	if k < 1 || k > 32 {
		return nil, ErrKOverflow
	}
	if dataSize < 0 || dataSize > 8 {
		return nil, ErrDataSize
	}

	fh, err := xopen.Wopen(file)
	if err != nil {
		return nil, err
	}

	wtr := &Writer{
		Header: Header{
			MajorVersion: MajorVersion,
			MinorVersion: MinorVersion,
			Encoding:     DefaultEncoding,
			Unique:       true,
			Canonical:    canonical,
		},
		k:        k,
		dataSize: dataSize,
		fh:       fh,
		codes:    EncodingTable(DefaultEncoding),
		rec:      make([]byte, PackedSize(k)+8),
	}

	err = wtr.writeHeader()
	if err != nil {
		fh.Close()
		return nil, err
	}

	err = wtr.writeVariables(map[string]uint64{
		VarK:        uint64(k),
		VarMax:      1,
		VarDataSize: uint64(dataSize),
	})
	if err != nil {
		fh.Close()
		return nil, err
	}

	return wtr, nil
}

func (wtr *Writer) writeHeader() error {
	w := wtr.fh
	var unique, canonical uint8
	if wtr.Unique {
		unique = 1
	}
	if wtr.Canonical {
		canonical = 1
	}

	err := binary.Write(w, be, Magic)
	if err != nil {
		return err
	}
	err = binary.Write(w, be, [5]uint8{wtr.MajorVersion, wtr.MinorVersion, wtr.Encoding, unique, canonical})
	if err != nil {
		return err
	}
	err = binary.Write(w, be, uint32(len(wtr.Metadata)))
	if err != nil {
		return err
	}
	_, err = w.Write(wtr.Metadata)
	return err
}

func (wtr *Writer) writeVariables(vars map[string]uint64) error {
	w := wtr.fh

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	err := w.WriteByte(SectionVariables)
	if err != nil {
		return err
	}
	err = binary.Write(w, be, uint64(len(vars)))
	if err != nil {
		return err
	}
	for _, name := range names {
		_, err = w.WriteString(name)
		if err != nil {
			return err
		}
		err = w.WriteByte(0)
		if err != nil {
			return err
		}
		err = binary.Write(w, be, vars[name])
		if err != nil {
			return err
		}
	}
	return nil
}

// Write adds a k-mer and its count. Counts larger than the payload
// capacity are truncated to the lowest bytes.
func (wtr *Writer) Write(kmer []byte, count uint64) error {
	if len(kmer) != wtr.k {
		return fmt.Errorf("kff: k-mer size mismatch: %d != %d", len(kmer), wtr.k)
	}
	if !util.IsACGT(kmer) {
		return util.ErrIllegalBase
	}

	nb := PackedSize(wtr.k)
	rec := wtr.rec[:nb+wtr.dataSize]
	clear(rec)
	var v uint8
	for i, b := range kmer {
		switch b {
		case 'A', 'a':
			v = wtr.codes[0]
		case 'C', 'c':
			v = wtr.codes[1]
		case 'G', 'g':
			v = wtr.codes[2]
		default:
			v = wtr.codes[3]
		}
		rec[i>>2] |= v << ((i & 3) << 1)
	}
	for i := 0; i < wtr.dataSize; i++ {
		rec[nb+i] = byte(count >> (i << 3))
	}

	wtr.buf.Write(rec)
	wtr.n++
	return nil
}

// Close writes the raw section and the footer. Close is very important.
func (wtr *Writer) Close() error {
	w := wtr.fh
	err := w.WriteByte(SectionRaw)
	if err != nil {
		return err
	}
	err = binary.Write(w, be, wtr.n)
	if err != nil {
		return err
	}
	_, err = w.Write(wtr.buf.Bytes())
	if err != nil {
		return err
	}
	err = binary.Write(w, be, Magic)
	if err != nil {
		return err
	}
	return w.Close()
}

// Reader streams k-mers and counts from a KFF file.
type Reader struct {
	Header

	vars map[string]uint64

	fh *xopen.Reader
	r  *bufio.Reader

	table    [4]byte
	k        int
	dataSize int

	remain uint64 // remaining blocks in the current raw section
	done   bool

	kmer []byte
	buf  []byte
}

// NewReader opens a file, parses the header and all global variables
// before the first raw section.
func NewReader(file string) (*Reader, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}

	rdr := &Reader{
		fh:   fh,
		r:    fh.Reader,
		vars: make(map[string]uint64, 8),
	}

	err = rdr.readHeader()
	if err != nil {
		fh.Close()
		return nil, err
	}

	err = rdr.nextRawSection()
	if err != nil && err != io.EOF {
		fh.Close()
		return nil, err
	}
	return rdr, nil
}

func (rdr *Reader) readHeader() error {
	buf := make([]byte, 9)
	n, err := io.ReadFull(rdr.r, buf[:3])
	if err != nil {
		if n == 0 && err == io.EOF {
			return ErrInvalidFileFormat
		}
		return ErrBrokenFile
	}
	if [3]byte(buf[:3]) != Magic {
		return ErrInvalidFileFormat
	}

	_, err = io.ReadFull(rdr.r, buf[:9])
	if err != nil {
		return ErrBrokenFile
	}
	if buf[0] != MajorVersion {
		return ErrVersionMismatch
	}
	rdr.MajorVersion = buf[0]
	rdr.MinorVersion = buf[1]
	rdr.Encoding = buf[2]
	rdr.Unique = buf[3] > 0
	rdr.Canonical = buf[4] > 0
	rdr.table = DecodingTable(rdr.Encoding)

	rdr.Metadata = make([]byte, be.Uint32(buf[5:9]))
	_, err = io.ReadFull(rdr.r, rdr.Metadata)
	if err != nil {
		return ErrBrokenFile
	}
	return nil
}

// nextRawSection consumes variable sections until a raw section begins,
// returning io.EOF at the footer.
func (rdr *Reader) nextRawSection() error {
	buf := make([]byte, 8)
	for {
		t, err := rdr.r.ReadByte()
		if err != nil {
			return ErrBrokenFile
		}

		switch t {
		case SectionVariables:
			_, err = io.ReadFull(rdr.r, buf)
			if err != nil {
				return ErrBrokenFile
			}
			nv := be.Uint64(buf)
			var name []byte
			for ; nv > 0; nv-- {
				name, err = rdr.r.ReadBytes(0)
				if err != nil {
					return ErrBrokenFile
				}
				_, err = io.ReadFull(rdr.r, buf)
				if err != nil {
					return ErrBrokenFile
				}
				rdr.vars[string(name[:len(name)-1])] = be.Uint64(buf)
			}
		case SectionRaw:
			err = rdr.checkVars()
			if err != nil {
				return err
			}
			_, err = io.ReadFull(rdr.r, buf)
			if err != nil {
				return ErrBrokenFile
			}
			rdr.remain = be.Uint64(buf)
			return nil
		case Magic[0]:
			_, err = io.ReadFull(rdr.r, buf[:2])
			if err != nil || buf[0] != Magic[1] || buf[1] != Magic[2] {
				return ErrBrokenFile
			}
			rdr.done = true
			return io.EOF
		default:
			return ErrUnsupportedSection
		}
	}
}

func (rdr *Reader) checkVars() error {
	k, ok := rdr.vars[VarK]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVarMissing, VarK)
	}
	if k < 1 || k > 32 {
		return ErrKOverflow
	}
	if rdr.k > 0 && int(k) != rdr.k {
		return fmt.Errorf("%w: %d -> %d", ErrKChanged, rdr.k, k)
	}
	ds, ok := rdr.vars[VarDataSize]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVarMissing, VarDataSize)
	}
	if ds > 8 {
		return ErrDataSize
	}
	if m, ok := rdr.vars[VarMax]; ok && m != 1 {
		return fmt.Errorf("kff: only one k-mer per block is supported, max=%d", m)
	}

	rdr.k = int(k)
	rdr.dataSize = int(ds)
	nb := PackedSize(rdr.k)
	if cap(rdr.buf) < nb+rdr.dataSize {
		rdr.buf = make([]byte, nb+rdr.dataSize)
	}
	rdr.buf = rdr.buf[:nb+rdr.dataSize]
	rdr.kmer = make([]byte, rdr.k)
	return nil
}

// Var returns the value of a global variable.
func (rdr *Reader) Var(name string) (uint64, bool) {
	v, ok := rdr.vars[name]
	return v, ok
}

// K returns the k-mer size, 0 if undefined.
func (rdr *Reader) K() int {
	return int(rdr.vars[VarK])
}

// Next returns the next k-mer, its raw payload and its count.
// Both slices are reused by the following call. It returns io.EOF
// after the last k-mer.
func (rdr *Reader) Next() (kmer []byte, data []byte, count uint64, err error) {
	for rdr.remain == 0 {
		if rdr.done {
			return nil, nil, 0, io.EOF
		}
		err = rdr.nextRawSection()
		if err != nil {
			return nil, nil, 0, err
		}
	}

	_, err = io.ReadFull(rdr.r, rdr.buf)
	if err != nil {
		return nil, nil, 0, ErrBrokenFile
	}
	rdr.remain--

	for i := range rdr.kmer {
		rdr.kmer[i] = rdr.table[rdr.buf[i>>2]>>((i&3)<<1)&3]
	}
	data = rdr.buf[PackedSize(rdr.k):]
	return rdr.kmer, data, Count(data), nil
}

// Close closes the reader.
func (rdr *Reader) Close() error {
	return rdr.fh.Close()
}
