package tracer

// A Tile is a rectangular image region in pixels.
type Tile struct {
	X, Y, W, H int
}

// NumPixels in the tile.
func (t Tile) NumPixels() int { return t.W * t.H }

// RankStripe assigns rank its horizontal stripe of the image tile via the
// global tile list. Ranks beyond the tile count receive an empty stripe.
func RankStripe(numRanks, rank int, image Tile) Tile {
	tiles := MakeTileList(image.W, image.H, numRanks, 1)
	if rank >= len(tiles) {
		return Tile{X: image.X, Y: image.Y + image.H, W: image.W, H: 0}
	}
	tile := tiles[rank]
	tile.X += image.X
	tile.Y += image.Y
	return tile
}

// MakeTileList splits an image into at most numTiles horizontal stripes of
// at least minTileSize rows each. Used to bound per-rank sample counts.
func MakeTileList(imageW, imageH, numTiles, minTileSize int) []Tile {
	if numTiles < 1 {
		numTiles = 1
	}
	if minTileSize < 1 {
		minTileSize = 1
	}
	for numTiles > 1 && imageH/numTiles < minTileSize {
		numTiles--
	}

	tiles := make([]Tile, 0, numTiles)
	y := 0
	for i := 0; i < numTiles; i++ {
		h := imageH / numTiles
		if i < imageH%numTiles {
			h++
		}
		tiles = append(tiles, Tile{X: 0, Y: y, W: imageW, H: h})
		y += h
	}
	return tiles
}
