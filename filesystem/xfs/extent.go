package xfs

import "encoding/binary"

const (
	extentRecordSize  = 16
	extentLogicalBits = 54
	extentPhysHiBits  = 9
	extentPhysLoBits  = 43
	extentLengthBits  = 21
)

// Extent is a decoded bmap extent record: a run of contiguous filesystem
// blocks assigned to a fork at a contiguous logical offset, per spec.md
// §3/§4.4.
type Extent struct {
	StartLogicalBlock  uint64
	StartPhysicalBlock uint64
	Length             uint32
	Unwritten          bool
}

// extentList is an ordered, validated run of Extent records: logical
// ranges are non-overlapping and strictly increasing by StartLogicalBlock,
// and every length is >= 1 (spec.md §3 invariant).
type extentList []Extent

// decodeExtentRecord unpacks one 128-bit big-endian bmap extent record
// per spec.md §4.4's bit layout.
func decodeExtentRecord(b []byte) Extent {
	l0 := binary.BigEndian.Uint64(b[0:8])
	l1 := binary.BigEndian.Uint64(b[8:16])

	unwritten := l0>>63&1 != 0
	logical := (l0 >> extentPhysHiBits) & (1<<extentLogicalBits - 1)
	physHi := l0 & (1<<extentPhysHiBits - 1)
	physLo := l1 >> extentLengthBits
	physical := physHi<<extentPhysLoBits | physLo
	length := uint32(l1 & (1<<extentLengthBits - 1))

	return Extent{
		StartLogicalBlock:  logical,
		StartPhysicalBlock: physical,
		Length:             length,
		Unwritten:          unwritten,
	}
}

// decodeExtentList decodes a packed run of nextents 128-bit extent
// records and validates the ordering/length invariants from spec.md §3
// and §4.4. A violation is CorruptExtentError.
func decodeExtentList(b []byte, nextents int) (extentList, error) {
	if len(b) < nextents*extentRecordSize {
		return nil, newCorruptExtentError("fork area too short for declared extent count")
	}
	list := make(extentList, 0, nextents)
	var prevEnd uint64
	havePrev := false
	for i := 0; i < nextents; i++ {
		rec := decodeExtentRecord(b[i*extentRecordSize : (i+1)*extentRecordSize])
		if rec.Length == 0 {
			return nil, newCorruptExtentError("extent length is zero")
		}
		if havePrev && rec.StartLogicalBlock < prevEnd {
			return nil, newCorruptExtentError("extent logical ranges are not strictly increasing")
		}
		list = append(list, rec)
		prevEnd = rec.StartLogicalBlock + uint64(rec.Length)
		havePrev = true
	}
	return list, nil
}

// physicalOffset performs a binary search over the extent stream for the
// extent covering logicalBlock, per spec.md §4.4's physical_offset helper.
// It returns the physical block, the number of contiguous blocks
// remaining in that extent from logicalBlock onward, and the unwritten
// flag. ok is false when logicalBlock falls in a hole (no extent covers
// it) -- a sparse region reads as zeros.
func (list extentList) physicalOffset(logicalBlock uint64) (physical uint64, contiguous uint32, unwritten bool, ok bool) {
	lo, hi := 0, len(list)
	for lo < hi {
		mid := (lo + hi) / 2
		e := list[mid]
		if logicalBlock < e.StartLogicalBlock {
			hi = mid
			continue
		}
		if logicalBlock >= e.StartLogicalBlock+uint64(e.Length) {
			lo = mid + 1
			continue
		}
		delta := logicalBlock - e.StartLogicalBlock
		return e.StartPhysicalBlock + delta, e.Length - uint32(delta), e.Unwritten, true
	}
	return 0, 0, false, false
}
