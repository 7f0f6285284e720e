package xfs

// readRange implements spec.md §4.5: read(fork, start_byte, length) ->
// bytes. It computes the logical block range, walks the extent map to
// physical byte offsets, reads each contiguous run in one ByteSource
// call, and concatenates. Unwritten extents and holes yield zero bytes
// without issuing I/O. Reads past end-of-file are clamped to the inode's
// logical size.
func (c *ioContext) readRange(in *inode, startByte int64, length int64) ([]byte, error) {
	if err := c.abort.checkAborted(); err != nil {
		return nil, err
	}
	if startByte < 0 || length < 0 {
		return nil, newInvalidArgumentError("negative offset or length")
	}

	fileSize := int64(in.size)
	if startByte >= fileSize {
		return []byte{}, nil
	}
	if startByte+length > fileSize {
		length = fileSize - startByte
	}
	if length == 0 {
		return []byte{}, nil
	}

	if in.dataForkFormat == forkFormatLocal {
		end := startByte + length
		if end > int64(len(in.inlineData)) {
			end = int64(len(in.inlineData))
		}
		if startByte > end {
			startByte = end
		}
		out := make([]byte, end-startByte)
		copy(out, in.inlineData[startByte:end])
		return out, nil
	}

	extents, err := c.resolvedDataExtents(in)
	if err != nil {
		return nil, err
	}

	blockSize := int64(c.geo.BlockSize)
	out := make([]byte, length)
	filled := int64(0)

	for filled < length {
		if err := c.abort.checkAborted(); err != nil {
			return nil, err
		}
		curByte := startByte + filled
		logicalBlock := uint64(curByte) / uint64(blockSize)
		blockOffsetInByte := curByte % blockSize

		physBlock, contiguous, unwritten, ok := extents.physicalOffset(logicalBlock)
		if !ok {
			// hole: zero-fill up to the next extent's start, or to EOF
			remaining := length - filled
			holeBlocks := contiguousHoleBlocks(extents, logicalBlock)
			holeBytes := holeBlocks*blockSize - blockOffsetInByte
			if holeBytes <= 0 || holeBytes > remaining {
				holeBytes = remaining
			}
			filled += holeBytes
			continue
		}

		runBytes := int64(contiguous)*blockSize - blockOffsetInByte
		remaining := length - filled
		if runBytes > remaining {
			runBytes = remaining
		}

		if unwritten {
			filled += runBytes
			continue
		}

		diskOffset := int64(physBlock)*blockSize + blockOffsetInByte
		if err := c.readAt(out[filled:filled+runBytes], diskOffset); err != nil {
			return nil, err
		}
		filled += runBytes
	}

	return out, nil
}

// contiguousHoleBlocks returns how many logical blocks, starting at
// logicalBlock, are unassigned before the next extent begins (or a large
// sentinel if none does).
func contiguousHoleBlocks(extents extentList, logicalBlock uint64) int64 {
	for _, e := range extents {
		if e.StartLogicalBlock > logicalBlock {
			return int64(e.StartLogicalBlock - logicalBlock)
		}
	}
	return 1 << 32
}

// readSymlinkTarget reads a symlink's target path, per spec.md §4.8: from
// inline bytes when the data fork is local, otherwise from data extents.
func (c *ioContext) readSymlinkTarget(in *inode) (string, error) {
	if in.dataForkFormat == forkFormatLocal {
		return in.linkTarget, nil
	}
	b, err := c.readRange(in, 0, int64(in.size))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
