package renderer

import (
	"fmt"
	"time"

	"github.com/hyungman/SpRay/display"
	"github.com/hyungman/SpRay/log"
	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/tracer"
)

var logger = log.New("renderer")

// FrameTracer renders one frame into the attached accumulation image.
type FrameTracer interface {
	Trace() error
}

// Renderer owns one render run: the scene, the camera, the accumulation
// image and the tracer variant selected by the options. The communicator
// is passed in from the frame entry; the renderer never creates one.
type Renderer struct {
	opts Options
	comm *mpi.Comm

	sc     *scene.Scene
	camera *scene.Camera
	image  *display.HdrImage
	tracer FrameTracer

	stats FrameStats
}

// New validates the options, loads the scene and wires the tracer.
func New(opts Options, comm *mpi.Comm) (*Renderer, error) {
	if comm.Provided() < mpi.ThreadFunneled {
		return nil, ErrThreadLevel
	}
	if opts.ModelDescriptor == "" {
		return nil, ErrSceneNotDefined
	}
	if opts.Partition == PartitionInsitu && opts.CacheSize >= 0 {
		return nil, ErrCacheWithInsitu
	}
	if opts.NumThreads < 1 {
		opts.NumThreads = 1
	}
	if opts.NumFrames < 1 {
		opts.NumFrames = 1
	}

	sc, err := scene.Init(opts.ModelDescriptor, opts.PlyPath, opts.AoSamples, comm.Size())
	if err != nil {
		return nil, err
	}

	r := &Renderer{opts: opts, comm: comm, sc: sc}

	r.initCamera()
	r.image = display.NewHdrImage(opts.ImageW, opts.ImageH)

	cfg := tracer.Config{
		ImageW:       opts.ImageW,
		ImageH:       opts.ImageH,
		PixelSamples: r.clampPixelSamples(),
		Bounces:      opts.Bounces,
		AoSamples:    opts.AoSamples,
		NumThreads:   opts.NumThreads,
		NumTiles:     opts.NumTiles,
		MinTileSize:  opts.MinTileSize,
		Ks:           opts.Ks,
		Shininess:    opts.Shininess,
		Background:   opts.Background,
		CacheSize:    opts.CacheSize,
	}

	var shader tracer.Shader
	if opts.AoMode {
		shader = tracer.NewAOShader(cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)
	} else {
		shader = tracer.NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)
	}

	tiles := tracer.MakeTileList(opts.ImageW, opts.ImageH, opts.NumTiles, opts.MinTileSize)
	logger.Infof("image split into %d tiles across %d ranks", len(tiles), comm.Size())

	switch opts.Partition {
	case PartitionInsitu:
		r.tracer = tracer.NewInsitu(cfg, comm, r.camera, sc, r.image, shader)
	case PartitionImage:
		r.tracer = tracer.NewOoc(cfg, comm, r.camera, sc, r.image, shader)
	default:
		return nil, ErrBadPartition
	}

	if comm.IsRoot() {
		logger.Noticef("number of domains: %d", sc.NumDomains())
	}
	return r, nil
}

// clampPixelSamples honors the per-rank screen sample cap.
func (r *Renderer) clampPixelSamples() int {
	spp := r.opts.PixelSamples
	if spp < 1 {
		spp = 1
	}
	if r.opts.MaxScreenSamplesPerRank <= 0 {
		return spp
	}

	stripe := (r.opts.ImageH + r.comm.Size() - 1) / r.comm.Size()
	rankSamples := stripe * r.opts.ImageW * spp
	for spp > 1 && rankSamples > r.opts.MaxScreenSamplesPerRank {
		spp--
		rankSamples = stripe * r.opts.ImageW * spp
	}
	return spp
}

func (r *Renderer) initCamera() {
	if r.opts.HasCamera {
		r.camera = scene.NewCamera(r.opts.CameraPos, r.opts.CameraLookAt, r.opts.CameraUp,
			r.opts.Fov, r.opts.ImageW, r.opts.ImageH)
		return
	}
	r.camera = scene.AutoFrame(r.sc.Bound(), r.opts.Fov, r.opts.ImageW, r.opts.ImageH)
}

// Camera exposes the active camera for the interactive view.
func (r *Renderer) Camera() *scene.Camera { return r.camera }

// Scene exposes the loaded scene.
func (r *Renderer) Scene() *scene.Scene { return r.sc }

// Image exposes the accumulation buffer.
func (r *Renderer) Image() *display.HdrImage { return r.image }

// Run dispatches on the configured view mode.
func (r *Renderer) Run() error {
	switch r.opts.ViewMode {
	case ViewModeFilm:
		return r.RenderFilm()
	case ViewModeGlfw:
		return r.RenderInteractive()
	case ViewModeDomain, ViewModePartition:
		return r.RenderBoundsView(r.opts.ViewMode)
	}
	return ErrBadViewMode
}

// RenderFilm renders the configured number of frames and writes the PPM
// from rank 0.
func (r *Renderer) RenderFilm() error {
	cluster := !r.comm.IsSingle()
	start := time.Now()

	for frame := 0; frame < r.opts.NumFrames; frame++ {
		frameStart := time.Now()

		r.image.Clear()
		if err := r.tracer.Trace(); err != nil {
			return fmt.Errorf("renderer: frame %d: %v", frame, err)
		}
		if cluster {
			r.image.Composite(r.comm)
		}

		r.stats.Frames = append(r.stats.Frames, FrameStat{Frame: frame, RenderTime: time.Since(frameStart)})
	}
	r.stats.RenderTime = time.Since(start)

	if r.comm.IsRoot() {
		if err := r.image.WritePpm(r.opts.OutputFilename); err != nil {
			return err
		}
		logger.Noticef("wrote frame to %s", r.opts.OutputFilename)
	}
	return nil
}

// RenderOneFrame traces and composites a single frame; the interactive
// view drives this per display refresh.
func (r *Renderer) RenderOneFrame() error {
	r.image.Clear()
	if err := r.tracer.Trace(); err != nil {
		return err
	}
	if !r.comm.IsSingle() {
		r.image.Composite(r.comm)
	}
	return nil
}

// Stats returns render statistics for the finished run.
func (r *Renderer) Stats() FrameStats { return r.stats }
