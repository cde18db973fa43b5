package storage

import "encoding/binary"

// FileHeaderSize is the fixed length of the database file header that
// occupies the first 100 bytes of page 1.
const FileHeaderSize = 100

var fileMagic = [16]byte{'S', 'Q', 'L', 'i', 't', 'e', ' ', 'f', 'o', 'r', 'm', 'a', 't', ' ', '3', 0}

// TextEncoding identifies how TEXT payload bytes are to be interpreted.
type TextEncoding uint32

const (
	TextEncodingUTF8    TextEncoding = 1
	TextEncodingUTF16LE TextEncoding = 2
	TextEncodingUTF16BE TextEncoding = 3
)

// FileHeader mirrors the 100-byte database file header bit-exactly.
// Every field not explicitly listed in spec.md §6 as writable by the
// commit path must round-trip unchanged.
type FileHeader struct {
	PageSize            uint32 // on-disk value 1 means 65536
	WriteVersion        byte
	ReadVersion         byte
	ReservedSpace       byte
	MaxPayloadFraction  byte // must be 64
	MinPayloadFraction  byte // must be 32
	LeafPayloadFraction byte // must be 32
	ChangeCounter       uint32
	PageCount           uint32
	FreelistTrunk       uint32
	FreelistCount       uint32
	SchemaCookie        uint32
	SchemaFormat        uint32 // 1..4
	DefaultPageCache    uint32
	AutoVacuumRoot      uint32
	TextEncoding        TextEncoding
	UserVersion         uint32
	IncrementalVacuum   uint32
	ApplicationID       uint32
	VersionValidFor     uint32
	EngineVersion       uint32
}

// NewFileHeader builds the header for a freshly initialized database.
func NewFileHeader(pageSize uint32) FileHeader {
	return FileHeader{
		PageSize:            pageSize,
		WriteVersion:        1,
		ReadVersion:         1,
		MaxPayloadFraction:  64,
		MinPayloadFraction:  32,
		LeafPayloadFraction: 32,
		PageCount:           1,
		SchemaFormat:        4,
		TextEncoding:        TextEncodingUTF8,
		EngineVersion:       1,
	}
}

// UsablePageSize is the page size minus the per-page reserved region.
func (h FileHeader) UsablePageSize() int {
	return int(h.pageSizeOnDisk()) - int(h.ReservedSpace)
}

func (h FileHeader) pageSizeOnDisk() uint32 {
	if h.PageSize == 65536 {
		return 65536
	}
	return h.PageSize
}

// Encode writes the header to a freshly allocated 100-byte buffer.
func (h FileHeader) Encode() []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:16], fileMagic[:])

	pageSizeField := uint16(h.PageSize)
	if h.PageSize == 65536 {
		pageSizeField = 1
	}
	binary.BigEndian.PutUint16(buf[16:18], pageSizeField)

	buf[18] = h.WriteVersion
	buf[19] = h.ReadVersion
	buf[20] = h.ReservedSpace
	buf[21] = h.MaxPayloadFraction
	buf[22] = h.MinPayloadFraction
	buf[23] = h.LeafPayloadFraction

	binary.BigEndian.PutUint32(buf[24:28], h.ChangeCounter)
	binary.BigEndian.PutUint32(buf[28:32], h.PageCount)
	binary.BigEndian.PutUint32(buf[32:36], h.FreelistTrunk)
	binary.BigEndian.PutUint32(buf[36:40], h.FreelistCount)
	binary.BigEndian.PutUint32(buf[40:44], h.SchemaCookie)
	binary.BigEndian.PutUint32(buf[44:48], h.SchemaFormat)
	binary.BigEndian.PutUint32(buf[48:52], h.DefaultPageCache)
	binary.BigEndian.PutUint32(buf[52:56], h.AutoVacuumRoot)
	binary.BigEndian.PutUint32(buf[56:60], uint32(h.TextEncoding))
	binary.BigEndian.PutUint32(buf[60:64], h.UserVersion)
	binary.BigEndian.PutUint32(buf[64:68], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(buf[68:72], h.ApplicationID)
	// buf[72:92] reserved, must be zero
	binary.BigEndian.PutUint32(buf[92:96], h.VersionValidFor)
	binary.BigEndian.PutUint32(buf[96:100], h.EngineVersion)

	return buf
}

// ParseFileHeader validates and decodes a 100-byte header.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) != FileHeaderSize {
		return FileHeader{}, NewError(ErrInvalidFileFormat, "file header must be 100 bytes")
	}
	if string(buf[0:16]) != string(fileMagic[:]) {
		return FileHeader{}, NewError(ErrInvalidFileFormat, "bad magic string")
	}

	pageSizeField := binary.BigEndian.Uint16(buf[16:18])
	pageSize := uint32(pageSizeField)
	if pageSizeField == 1 {
		pageSize = 65536
	}
	if !validPageSize(pageSize) {
		return FileHeader{}, NewError(ErrInvalidFileFormat, "invalid page size")
	}

	h := FileHeader{
		PageSize:            pageSize,
		WriteVersion:        buf[18],
		ReadVersion:         buf[19],
		ReservedSpace:       buf[20],
		MaxPayloadFraction:  buf[21],
		MinPayloadFraction:  buf[22],
		LeafPayloadFraction: buf[23],
		ChangeCounter:       binary.BigEndian.Uint32(buf[24:28]),
		PageCount:           binary.BigEndian.Uint32(buf[28:32]),
		FreelistTrunk:       binary.BigEndian.Uint32(buf[32:36]),
		FreelistCount:       binary.BigEndian.Uint32(buf[36:40]),
		SchemaCookie:        binary.BigEndian.Uint32(buf[40:44]),
		SchemaFormat:        binary.BigEndian.Uint32(buf[44:48]),
		DefaultPageCache:    binary.BigEndian.Uint32(buf[48:52]),
		AutoVacuumRoot:      binary.BigEndian.Uint32(buf[52:56]),
		TextEncoding:        TextEncoding(binary.BigEndian.Uint32(buf[56:60])),
		UserVersion:         binary.BigEndian.Uint32(buf[60:64]),
		IncrementalVacuum:   binary.BigEndian.Uint32(buf[64:68]),
		ApplicationID:       binary.BigEndian.Uint32(buf[68:72]),
		VersionValidFor:     binary.BigEndian.Uint32(buf[92:96]),
		EngineVersion:       binary.BigEndian.Uint32(buf[96:100]),
	}

	if h.MaxPayloadFraction != 64 || h.MinPayloadFraction != 32 || h.LeafPayloadFraction != 32 {
		return FileHeader{}, NewError(ErrInvalidFileFormat, "illegal payload fraction constants")
	}
	if h.SchemaFormat < 1 || h.SchemaFormat > 4 {
		return FileHeader{}, NewError(ErrInvalidFileFormat, "invalid schema format")
	}
	for _, b := range buf[72:92] {
		if b != 0 {
			return FileHeader{}, NewError(ErrInvalidFileFormat, "reserved header bytes must be zero")
		}
	}
	switch h.TextEncoding {
	case TextEncodingUTF8:
	case TextEncodingUTF16LE, TextEncodingUTF16BE:
		return FileHeader{}, NewError(ErrUnsupportedFeature, "UTF-16 text encoding is a deferred capability")
	default:
		return FileHeader{}, NewError(ErrInvalidFileFormat, "invalid text encoding")
	}

	return h, nil
}

func validPageSize(p uint32) bool {
	switch p {
	case 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536:
		return true
	}
	return false
}
