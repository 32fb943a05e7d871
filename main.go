package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/hyungman/SpRay/cmd"
	"github.com/hyungman/SpRay/log"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "spray"
	app.Usage = "render distributed scenes with speculative ray scheduling"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a scene descriptor",
			Description: `
Parse a scene descriptor, distribute its domains across the cluster ranks
and drive rays to global convergence. In the in-situ partition each rank
processes only its own domains and forwards foreign rays; in the image
partition every rank may page any domain through the out-of-core cache.`,
			ArgsUsage: "scene.descriptor",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "image width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "image height",
				},
				cli.IntFlag{
					Name:  "pixel-samples",
					Value: 1,
					Usage: "samples per pixel",
				},
				cli.IntFlag{
					Name:  "ao-samples",
					Value: 8,
					Usage: "samples for ambient occlusion and area lights",
				},
				cli.IntFlag{
					Name:  "bounces",
					Value: 1,
					Usage: "number of indirect bounces",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of frames to render",
				},
				cli.StringFlag{
					Name:  "camera",
					Usage: "camera as \"px py pz lx ly lz ux uy uz\"; omit to auto frame",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 45.0,
					Usage: "vertical field of view in degrees",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "spray.ppm",
					Usage: "output ppm path",
				},
				cli.StringFlag{
					Name:  "view",
					Value: "film",
					Usage: "view mode: film, glfw, domain or partition",
				},
				cli.StringFlag{
					Name:  "partition",
					Value: "image",
					Usage: "partition: insitu or image",
				},
				cli.BoolFlag{
					Name:  "ao",
					Usage: "use the ambient occlusion shader",
				},
				cli.IntFlag{
					Name:  "cache-size",
					Value: -1,
					Usage: "out-of-core cache capacity in domains; negative means infinite",
				},
				cli.StringFlag{
					Name:  "ply-path",
					Usage: "search path for ply model files",
				},
				cli.IntFlag{
					Name:  "threads",
					Usage: "worker threads per rank; 0 uses all cpus",
				},
				cli.IntFlag{
					Name:  "num-tiles",
					Value: 1,
					Usage: "image tiling granularity",
				},
				cli.IntFlag{
					Name:  "min-tile-size",
					Value: 1,
					Usage: "minimum tile height in rows",
				},
				cli.IntFlag{
					Name:  "max-samples-per-rank",
					Usage: "cap on screen-space samples per rank; 0 disables",
				},
				cli.Float64Flag{
					Name:  "ks",
					Value: 0.0,
					Usage: "blinn-phong specular coefficient",
				},
				cli.Float64Flag{
					Name:  "shininess",
					Value: 10.0,
					Usage: "blinn-phong shininess exponent",
				},
				cli.StringFlag{
					Name:  "mpi-addr",
					Usage: "this rank's listen address",
				},
				cli.StringFlag{
					Name:  "mpi-alladdr",
					Usage: "comma separated addresses of every rank, in rank order",
				},
			},
			Action: cmd.Render,
		},
		{
			Name:      "describe",
			Usage:     "summarize a scene descriptor",
			ArgsUsage: "scene.descriptor",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "ply-path",
					Usage: "search path for ply model files",
				},
				cli.IntFlag{
					Name:  "ranks",
					Value: 1,
					Usage: "rank count for the partition column",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "re-emit the parsed scene to this descriptor file",
				},
			},
			Action: cmd.Describe,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("spray").Criticalf("%v", err)
		os.Exit(1)
	}
}
