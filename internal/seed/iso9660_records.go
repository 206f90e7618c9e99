package seed

import (
	"bytes"
	"encoding/binary"
	"time"
)

// pvdParams carries the values buildPVD needs to fill in the primary
// volume descriptor.
type pvdParams struct {
	volumeLabel   string
	totalSectors  uint32
	pathTableSize uint32
	rootDirRecord []byte
	now           time.Time
}

// buildPVD lays out the 2048-byte primary volume descriptor (ECMA-119
// 8.4). The returned slice may be shorter than a sector; the caller
// zero-pads it to sectorSize.
func buildPVD(p pvdParams) []byte {
	var b bytes.Buffer

	b.WriteByte(1)         // volume descriptor type: primary
	b.WriteString("CD001") // standard identifier
	b.WriteByte(1)         // volume descriptor version
	b.WriteByte(0)         // unused

	b.Write(padSpaces("", 32))            // system identifier
	b.Write(padSpaces(p.volumeLabel, 32)) // volume identifier
	b.Write(make([]byte, 8))              // unused

	bothOrder32(&b, p.totalSectors) // volume space size
	b.Write(make([]byte, 32))       // unused

	bothOrder16(&b, 1)                   // volume set size
	bothOrder16(&b, 1)                   // volume sequence number
	bothOrder16(&b, uint16(sectorSize))  // logical block size
	bothOrder32(&b, p.pathTableSize)     // path table size

	var leLoc [4]byte
	binary.LittleEndian.PutUint32(leLoc[:], sectorPathTableL)
	b.Write(leLoc[:])         // location of type L path table
	b.Write(make([]byte, 4)) // location of optional type L path table

	var beLoc [4]byte
	binary.BigEndian.PutUint32(beLoc[:], sectorPathTableM)
	b.Write(beLoc[:])        // location of type M path table
	b.Write(make([]byte, 4)) // location of optional type M path table

	b.Write(p.rootDirRecord) // directory record for root directory

	b.Write(padSpaces("", 128))           // volume set identifier
	b.Write(padSpaces("CARAPACEOS", 128)) // publisher identifier
	b.Write(padSpaces("", 128))           // data preparer identifier
	b.Write(padSpaces("CARAPACEOS", 128)) // application identifier
	b.Write(padSpaces("", 37))            // copyright file identifier
	b.Write(padSpaces("", 37))            // abstract file identifier
	b.Write(padSpaces("", 37))            // bibliographic file identifier

	b.Write(isoVolumeDateTime(p.now)) // volume creation date/time
	b.Write(isoVolumeDateTime(p.now)) // volume modification date/time
	b.Write(isoUnsetVolumeDateTime()) // volume expiration date/time
	b.Write(isoVolumeDateTime(p.now)) // volume effective date/time

	b.WriteByte(1) // file structure version
	b.WriteByte(0) // reserved
	b.Write(make([]byte, 512)) // application use

	return b.Bytes()
}

// buildTerminator lays out the volume descriptor set terminator
// (ECMA-119 8.3): type 255, "CD001", version 1.
func buildTerminator() []byte {
	var b bytes.Buffer
	b.WriteByte(255)
	b.WriteString("CD001")
	b.WriteByte(1)
	return b.Bytes()
}

// buildPathTable lays out a single-entry path table (root directory
// only, no subdirectories) in the given byte order. ECMA-119 requires
// both a little-endian (type L) and big-endian (type M) copy.
func buildPathTable(rootLBA uint32, order binary.ByteOrder) []byte {
	var b bytes.Buffer

	b.WriteByte(1) // length of directory identifier
	b.WriteByte(0) // extended attribute record length

	var lbaBuf [4]byte
	order.PutUint32(lbaBuf[:], rootLBA)
	b.Write(lbaBuf[:])

	var parentBuf [2]byte
	order.PutUint16(parentBuf[:], 1) // parent directory number: root is its own parent
	b.Write(parentBuf[:])

	b.WriteByte(0x00) // directory identifier: root
	b.WriteByte(0x00) // padding byte (identifier length is odd)

	return b.Bytes()
}

// directoryRecordForSelf builds the directory record describing the
// root directory itself, as embedded in the PVD.
func directoryRecordForSelf(ext extent, when time.Time) []byte {
	return buildDirectoryRecord(ext, []byte{0x00}, dirFlagDirectory, when)
}

const dirFlagDirectory = 0x02

// buildDirectoryRecord lays out one ISO 9660 directory record
// (ECMA-119 9.1): fixed 33-byte header followed by the file
// identifier and an optional padding byte that keeps the record
// length even.
func buildDirectoryRecord(ext extent, identifier []byte, flags byte, when time.Time) []byte {
	var b bytes.Buffer

	b.WriteByte(0) // record length, patched below
	b.WriteByte(0) // extended attribute record length

	bothOrder32(&b, ext.lba)  // location of extent
	bothOrder32(&b, ext.size) // data length

	b.Write(isoRecordingDateTime(when))

	b.WriteByte(flags)
	b.WriteByte(0) // file unit size
	b.WriteByte(0) // interleave gap size

	bothOrder16(&b, 1) // volume sequence number

	b.WriteByte(byte(len(identifier)))
	b.Write(identifier)
	if len(identifier)%2 == 0 {
		b.WriteByte(0) // padding keeps the record length even
	}

	out := b.Bytes()
	out[0] = byte(len(out))
	return out
}

// buildRootDirectory lays out the root directory's own extent: self
// ("."), parent (".."), then one record per file. The self and parent
// records' data-length fields are patched once the full extent size
// is known, since the directory is self-referential.
func buildRootDirectory(files []file, fileExtents []extent) []byte {
	when := time.Now()
	rootRef := extent{lba: sectorRootDirectory, size: 0}

	selfRec := buildDirectoryRecord(rootRef, []byte{0x00}, dirFlagDirectory, when)
	parentRec := buildDirectoryRecord(rootRef, []byte{0x01}, dirFlagDirectory, when)

	var b bytes.Buffer
	b.Write(selfRec)
	b.Write(parentRec)
	for i, f := range files {
		b.Write(buildDirectoryRecord(fileExtents[i], []byte(f.identifier), 0, when))
	}

	content := b.Bytes()
	total := uint32(len(content))
	patchDataLength(content, 0, total)
	patchDataLength(content, len(selfRec), total)
	return content
}

// patchDataLength overwrites the data-length field (both byte orders)
// of the directory record starting at offset within record.
func patchDataLength(record []byte, offset int, size uint32) {
	var le, be [4]byte
	binary.LittleEndian.PutUint32(le[:], size)
	binary.BigEndian.PutUint32(be[:], size)
	copy(record[offset+10:offset+14], le[:])
	copy(record[offset+14:offset+18], be[:])
}
