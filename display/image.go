// Package display holds the accumulation framebuffer and its PPM output.
package display

import (
	"bufio"
	"fmt"
	"os"

	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/types"
)

// HdrImage accumulates radiance per pixel in linear space. Writers deposit
// from single-threaded phases only; the tracer serializes access through
// its per-depth barriers.
type HdrImage struct {
	W, H int
	Buf  []float32 // 3 floats per pixel
}

// NewHdrImage allocates a cleared image.
func NewHdrImage(w, h int) *HdrImage {
	return &HdrImage{W: w, H: h, Buf: make([]float32, w*h*3)}
}

// Clear zeroes the accumulation buffer.
func (img *HdrImage) Clear() {
	for i := range img.Buf {
		img.Buf[i] = 0
	}
}

// Add deposits a weighted radiance contribution at a pixel.
func (img *HdrImage) Add(pixid int, w types.Vec3, scale float64) {
	base := pixid * 3
	img.Buf[base] += float32(float64(w[0]) * scale)
	img.Buf[base+1] += float32(float64(w[1]) * scale)
	img.Buf[base+2] += float32(float64(w[2]) * scale)
}

// Composite sums per-rank accumulation buffers into rank 0.
func (img *HdrImage) Composite(comm *mpi.Comm) {
	comm.ReduceSumFloat32(img.Buf)
}

// WritePpm writes the image as an 8-bit PPM. Rows are emitted top to
// bottom; the accumulation buffer's row zero is the image bottom.
func (img *HdrImage) WritePpm(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("display: unable to create %s: %v", filename, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "P3\n%d %d\n255\n", img.W, img.H)

	for y := img.H - 1; y >= 0; y-- {
		for x := 0; x < img.W; x++ {
			base := (y*img.W + x) * 3
			fmt.Fprintf(w, "%d %d %d\n",
				toneMap(img.Buf[base]),
				toneMap(img.Buf[base+1]),
				toneMap(img.Buf[base+2]))
		}
	}
	return w.Flush()
}

func toneMap(v float32) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v*255.0 + 0.5)
}
