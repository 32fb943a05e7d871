package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/hyungman/SpRay/scene"
)

// Describe parses a scene descriptor and prints a per-domain summary.
// With --out it re-emits the parsed scene as a descriptor file.
func Describe(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene descriptor argument")
	}

	domains, lights, err := scene.LoadDescriptor(ctx.Args().First(), ctx.String("ply-path"), 1)
	if err != nil {
		return err
	}

	numRanks := ctx.Int("ranks")
	if numRanks < 1 {
		numRanks = 1
	}
	partition := scene.NewInsituPartition(len(domains), numRanks)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Domain", "Models", "Spheres", "Rank"})
	for i := range domains {
		d := &domains[i]
		table.Append([]string{
			fmt.Sprintf("%d", d.ID),
			fmt.Sprintf("%d", len(d.Models)),
			fmt.Sprintf("%d", len(d.Shapes)),
			fmt.Sprintf("%d", partition.Rank(d.ID)),
		})
	}
	table.SetFooter([]string{fmt.Sprintf("%d domains", len(domains)), "", "", fmt.Sprintf("%d lights", len(lights))})
	table.Render()

	logger.Noticef("scene summary\n%s", buf.String())

	if out := ctx.String("out"); out != "" {
		if err := scene.SaveDescriptor(out, domains, lights); err != nil {
			return err
		}
		logger.Noticef("wrote descriptor to %s", out)
	}
	return nil
}
