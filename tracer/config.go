package tracer

import "github.com/hyungman/SpRay/types"

// Config carries the per-frame tracer settings.
type Config struct {
	ImageW int
	ImageH int

	PixelSamples int
	Bounces      int
	AoSamples    int

	NumThreads int

	NumTiles    int
	MinTileSize int

	// Blinn-Phong shading constants.
	Ks        types.Vec3
	Shininess float32

	// Background color deposited by rays that miss every domain.
	Background types.Vec3

	// CacheSize bounds the out-of-core cache in domains; negative means
	// infinite.
	CacheSize int
}
