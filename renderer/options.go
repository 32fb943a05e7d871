package renderer

import "github.com/hyungman/SpRay/types"

// Partition selects how domains map to ranks.
type Partition int

const (
	// PartitionInsitu fixes each domain to one owning rank.
	PartitionInsitu Partition = iota
	// PartitionImage splits the image across ranks; any rank may process
	// any domain through the out-of-core cache.
	PartitionImage
)

// ViewMode selects the output surface.
type ViewMode int

const (
	ViewModeFilm ViewMode = iota
	ViewModeGlfw
	ViewModeDomain
	ViewModePartition
)

// Options is the full render configuration assembled from the CLI.
type Options struct {
	ImageW int
	ImageH int

	PixelSamples int
	AoSamples    int
	Bounces      int
	NumFrames    int

	// Camera configuration; when HasCamera is false the camera auto
	// frames the scene bound.
	HasCamera bool
	CameraPos    types.Vec3
	CameraLookAt types.Vec3
	CameraUp     types.Vec3
	Fov          float32

	OutputFilename string

	ViewMode  ViewMode
	Partition Partition

	// AoMode selects the ambient-occlusion shader over path tracing.
	AoMode bool

	// CacheSize bounds the out-of-core cache in domains; negative means
	// infinite. Meaningless (and rejected) for the in-situ partition.
	CacheSize int

	ModelDescriptor string
	PlyPath         string

	NumThreads int

	NumTiles    int
	MinTileSize int

	// MaxScreenSamplesPerRank caps a rank's eye-ray buffer.
	MaxScreenSamplesPerRank int

	// Blinn-Phong shading constants.
	Ks        types.Vec3
	Shininess float32

	Background types.Vec3
}
