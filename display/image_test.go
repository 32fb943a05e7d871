package display

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyungman/SpRay/types"
)

func TestHdrImageAccumulate(t *testing.T) {
	img := NewHdrImage(2, 2)

	img.Add(0, types.Vec3{1, 0.5, 0.25}, 0.5)
	img.Add(0, types.Vec3{1, 0.5, 0.25}, 0.5)

	if img.Buf[0] != 1 || img.Buf[1] != 0.5 || img.Buf[2] != 0.25 {
		t.Fatalf("unexpected accumulation: %v", img.Buf[:3])
	}

	img.Clear()
	for _, v := range img.Buf {
		if v != 0 {
			t.Fatalf("expected cleared buffer")
		}
	}
}

func TestWritePpm(t *testing.T) {
	img := NewHdrImage(2, 1)
	img.Add(0, types.Vec3{1, 0, 0}, 1)
	img.Add(1, types.Vec3{0, 2, 0}, 1) // over-range clamps

	path := filepath.Join(t.TempDir(), "out.ppm")
	if err := img.WritePpm(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading ppm: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "P3" {
		t.Fatalf("expected P3 header; got %q", lines[0])
	}
	if lines[1] != "2 1" {
		t.Fatalf("expected dimensions 2 1; got %q", lines[1])
	}
	if lines[3] != "255 0 0" {
		t.Fatalf("expected a red first pixel; got %q", lines[3])
	}
	if lines[4] != "0 255 0" {
		t.Fatalf("expected a clamped green pixel; got %q", lines[4])
	}
}
