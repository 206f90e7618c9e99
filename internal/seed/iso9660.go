package seed

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"
)

// sectorSize is the ISO 9660 logical block size used throughout this
// writer. The standard allows other values but every consumer of this
// image (the hypervisor's virtual CD-ROM device) expects 2048.
const sectorSize = 2048

// Layout sector numbers, fixed by the specification.
const (
	sectorSystemAreaStart = 0
	sectorSystemAreaEnd   = 15
	sectorPVD             = 16
	sectorTerminator      = 17
	sectorPathTableL      = 18
	sectorPathTableM      = 19
	sectorRootDirectory   = 20
	sectorFileDataStart   = 21
)

// file is one entry written into the root directory and its own data
// extent.
type file struct {
	identifier string // e.g. "METADAT.;1"
	content    []byte
}

// image describes the complete contents of a seed ISO.
type image struct {
	volumeLabel string
	files       []file
}

// extent describes where a piece of content lives once laid out.
type extent struct {
	lba     uint32
	size    uint32 // bytes
	sectors uint32
}

// writeTo lays out and writes the full ISO 9660 image to w.
func (img *image) writeTo(w io.Writer) error {
	// Compute file extents starting at sectorFileDataStart, in order.
	fileExtents := make([]extent, len(img.files))
	lba := uint32(sectorFileDataStart)
	for i, f := range img.files {
		sectors := sectorsFor(len(f.content))
		fileExtents[i] = extent{lba: lba, size: uint32(len(f.content)), sectors: sectors}
		lba += sectors
	}
	totalSectors := lba

	rootDir := buildRootDirectory(img.files, fileExtents)
	rootDirExtent := extent{lba: sectorRootDirectory, size: uint32(len(rootDir)), sectors: sectorsFor(len(rootDir))}

	pathTableL := buildPathTable(rootDirExtent.lba, binary.LittleEndian)
	pathTableM := buildPathTable(rootDirExtent.lba, binary.BigEndian)

	now := time.Now()

	pvd := buildPVD(pvdParams{
		volumeLabel:   img.volumeLabel,
		totalSectors:  totalSectors,
		pathTableSize: uint32(len(pathTableL)),
		rootDirRecord: directoryRecordForSelf(rootDirExtent, now),
		now:           now,
	})

	// System area: sectors 0-15, all zero.
	if err := writeZeroSectors(w, sectorSystemAreaEnd-sectorSystemAreaStart+1); err != nil {
		return err
	}

	if err := writeSector(w, pvd); err != nil {
		return err
	}
	if err := writeSector(w, buildTerminator()); err != nil {
		return err
	}
	if err := writeSector(w, pathTableL); err != nil {
		return err
	}
	if err := writeSector(w, pathTableM); err != nil {
		return err
	}
	if err := writePaddedSectors(w, rootDir, rootDirExtent.sectors); err != nil {
		return err
	}

	for i, f := range img.files {
		if err := writePaddedSectors(w, f.content, fileExtents[i].sectors); err != nil {
			return err
		}
	}

	return nil
}

func sectorsFor(n int) uint32 {
	if n == 0 {
		return 1
	}
	return uint32((n + sectorSize - 1) / sectorSize)
}

func writeZeroSectors(w io.Writer, n int) error {
	zero := make([]byte, sectorSize)
	for i := 0; i < n; i++ {
		if _, err := w.Write(zero); err != nil {
			return err
		}
	}
	return nil
}

// writeSector writes exactly one sector, zero-padding content shorter
// than sectorSize.
func writeSector(w io.Writer, content []byte) error {
	buf := make([]byte, sectorSize)
	copy(buf, content)
	_, err := w.Write(buf)
	return err
}

// writePaddedSectors writes content across exactly n sectors, zero
// padding the final partial sector.
func writePaddedSectors(w io.Writer, content []byte, n uint32) error {
	buf := make([]byte, int(n)*sectorSize)
	copy(buf, content)
	_, err := w.Write(buf)
	return err
}

// bothOrder32 appends a 32-bit value in both little-endian and
// big-endian order, as ECMA-119 requires for numeric fields that must
// be readable regardless of host byte order.
func bothOrder32(b *bytes.Buffer, v uint32) {
	var le, be [4]byte
	binary.LittleEndian.PutUint32(le[:], v)
	binary.BigEndian.PutUint32(be[:], v)
	b.Write(le[:])
	b.Write(be[:])
}

// bothOrder16 appends a 16-bit value in both byte orders.
func bothOrder16(b *bytes.Buffer, v uint16) {
	var le, be [2]byte
	binary.LittleEndian.PutUint16(le[:], v)
	binary.BigEndian.PutUint16(be[:], v)
	b.Write(le[:])
	b.Write(be[:])
}

func padSpaces(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

// isoRecordingDateTime encodes the 7-byte directory-record date/time
// field: year offset from 1900, month, day, hour, minute, second, GMT
// offset in 15-minute intervals.
func isoRecordingDateTime(t time.Time) []byte {
	return []byte{
		byte(t.Year() - 1900),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
		0, // GMT offset, unspecified
	}
}

// isoVolumeDateTime encodes the 17-byte volume descriptor date/time
// field used by the PVD's creation/modification/expiration/effective
// fields: 16 ASCII digits YYYYMMDDHHMMSSCC followed by a GMT offset byte.
func isoVolumeDateTime(t time.Time) []byte {
	s := t.Format("20060102150405") + "00"
	out := make([]byte, 17)
	copy(out, s)
	out[16] = 0
	return out
}

// isoUnsetVolumeDateTime encodes the "not specified" form of the
// 17-byte volume date/time field: all zero digit characters.
func isoUnsetVolumeDateTime() []byte {
	out := make([]byte, 17)
	for i := 0; i < 16; i++ {
		out[i] = '0'
	}
	out[16] = 0
	return out
}
