package types

import "fmt"

type Sector uint8

type Block uint8

// TagType identifies the MIFARE Classic variant of a token.
type TagType int

const (
	TagUnknown TagType = iota
	TagClassic1K
	TagClassic4K
)

func (t TagType) String() string {
	switch t {
	case TagClassic1K:
		return "MIFARE Classic 1k"
	case TagClassic4K:
		return "MIFARE Classic 4k"
	default:
		return "unknown tag"
	}
}

// SectorCount returns the number of sectors of the tag, 0 for unknown tags.
func (t TagType) SectorCount() int {
	switch t {
	case TagClassic1K:
		return 16
	case TagClassic4K:
		return 40
	default:
		return 0
	}
}

// Sectors 0-31 have 4 blocks, sectors 32-39 (4k only) have 16.
const (
	smallSectors     = 32
	smallSectorSize  = 4
	largeSectorSize  = 16
	largeSectorStart = smallSectors * smallSectorSize
)

// SectorFirstBlock returns the first block of the sector.
func SectorFirstBlock(s Sector) Block {
	if s < smallSectors {
		return Block(int(s) * smallSectorSize)
	}

	return Block(largeSectorStart + (int(s)-smallSectors)*largeSectorSize)
}

// SectorBlockCount returns the number of blocks, trailer included, of the sector.
func SectorBlockCount(s Sector) int {
	if s < smallSectors {
		return smallSectorSize
	}

	return largeSectorSize
}

// SectorLastBlock returns the trailer block of the sector.
func SectorLastBlock(s Sector) Block {
	return Block(int(SectorFirstBlock(s)) + SectorBlockCount(s) - 1)
}

// SectorDataBlocks returns the data blocks of the sector in ascending order.
func SectorDataBlocks(s Sector) []Block {
	first := SectorFirstBlock(s)
	blocks := make([]Block, 0, SectorBlockCount(s)-1)
	for i := 0; i < SectorBlockCount(s)-1; i++ {
		blocks = append(blocks, first+Block(i))
	}

	return blocks
}

// BlockSector returns the sector containing the block.
func BlockSector(b Block) Sector {
	if int(b) < largeSectorStart {
		return Sector(int(b) / smallSectorSize)
	}

	return Sector(smallSectors + (int(b)-largeSectorStart)/largeSectorSize)
}

// IsTrailer reports whether b is the trailer block of its sector.
func IsTrailer(b Block) bool {
	return SectorLastBlock(BlockSector(b)) == b
}

// IsManufacturerBlock reports whether b is block 0, which is read-only.
func IsManufacturerBlock(b Block) bool {
	return b == 0
}

func (s Sector) String() string {
	return fmt.Sprintf("0x%02x", uint8(s))
}

func (b Block) String() string {
	return fmt.Sprintf("0x%02x", uint8(b))
}
