package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/renderer"
	"github.com/hyungman/SpRay/types"
)

// Render traces the configured scene and writes the frame from rank 0.
func Render(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene descriptor argument")
	}

	opts, err := optionsFromContext(ctx)
	if err != nil {
		return err
	}
	opts.ModelDescriptor = ctx.Args().First()

	comm, err := mpi.Init(mpi.Options{
		Addr:     ctx.String("mpi-addr"),
		AllAddrs: splitAddrs(ctx.String("mpi-alladdr")),
	})
	if err != nil {
		return err
	}
	defer comm.Finalize()

	r, err := renderer.New(opts, comm)
	if err != nil {
		return err
	}

	if err := r.Run(); err != nil {
		comm.Abort()
		return err
	}

	if comm.IsRoot() && opts.ViewMode == renderer.ViewModeFilm {
		displayFrameStats(r.Stats())
	}
	return nil
}

func splitAddrs(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, ",")
}

func optionsFromContext(ctx *cli.Context) (renderer.Options, error) {
	opts := renderer.Options{
		ImageW:       ctx.Int("width"),
		ImageH:       ctx.Int("height"),
		PixelSamples: ctx.Int("pixel-samples"),
		AoSamples:    ctx.Int("ao-samples"),
		Bounces:      ctx.Int("bounces"),
		NumFrames:    ctx.Int("frames"),

		Fov: float32(ctx.Float64("fov")),

		OutputFilename: ctx.String("out"),

		AoMode:    ctx.Bool("ao"),
		CacheSize: ctx.Int("cache-size"),

		PlyPath: ctx.String("ply-path"),

		NumThreads:              numThreads(ctx),
		NumTiles:                ctx.Int("num-tiles"),
		MinTileSize:             ctx.Int("min-tile-size"),
		MaxScreenSamplesPerRank: ctx.Int("max-samples-per-rank"),

		Ks: types.Vec3{
			float32(ctx.Float64("ks")),
			float32(ctx.Float64("ks")),
			float32(ctx.Float64("ks")),
		},
		Shininess: float32(ctx.Float64("shininess")),

		Background: types.Vec3{0, 0, 0},
	}

	switch ctx.String("partition") {
	case "insitu":
		opts.Partition = renderer.PartitionInsitu
	case "image":
		opts.Partition = renderer.PartitionImage
	default:
		return opts, fmt.Errorf("unknown partition %q", ctx.String("partition"))
	}

	switch ctx.String("view") {
	case "film":
		opts.ViewMode = renderer.ViewModeFilm
	case "glfw":
		opts.ViewMode = renderer.ViewModeGlfw
	case "domain":
		opts.ViewMode = renderer.ViewModeDomain
	case "partition":
		opts.ViewMode = renderer.ViewModePartition
	default:
		return opts, fmt.Errorf("unknown view mode %q", ctx.String("view"))
	}

	camPos := ctx.String("camera")
	if camPos != "" {
		var pos, lookat, up types.Vec3
		n, err := fmt.Sscanf(camPos, "%f %f %f %f %f %f %f %f %f",
			&pos[0], &pos[1], &pos[2],
			&lookat[0], &lookat[1], &lookat[2],
			&up[0], &up[1], &up[2])
		if err != nil || n != 9 {
			return opts, fmt.Errorf("camera takes 9 values: pos lookat up")
		}
		opts.HasCamera = true
		opts.CameraPos = pos
		opts.CameraLookAt = lookat
		opts.CameraUp = up
	}

	return opts, nil
}

func numThreads(ctx *cli.Context) int {
	n := ctx.Int("threads")
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return n
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Render time"})
	for _, stat := range stats.Frames {
		table.Append([]string{
			fmt.Sprintf("%d", stat.Frame),
			fmt.Sprintf("%s", stat.RenderTime),
		})
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%s", stats.RenderTime)})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
