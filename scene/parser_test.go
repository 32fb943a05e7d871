package scene

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyungman/SpRay/types"
)

const testDescriptor = `# two domains, two lights
light point 1 2 3 0.5 0.5 0.5
light diffuse 1 1 1
domain
ModelBegin
file bunny.ply
material matte 0.2 0.4 0.6
scale 2 2 2
rotate y 90
translate 1 0 0
ModelEnd
domain
sphere 0 1 0 0.5 metal 0.9 0.8 0.7 0.1
sphere 2 1 0 0.25 dielectric 1.5
`

func writeTempDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.descriptor")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
	return path
}

func TestLoadDescriptor(t *testing.T) {
	domains, lights, err := LoadDescriptor(writeTempDescriptor(t, testDescriptor), "", 1)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(domains) != 2 {
		t.Fatalf("expected 2 domains; got %d", len(domains))
	}
	if len(lights) != 2 {
		t.Fatalf("expected 2 lights; got %d", len(lights))
	}

	d0 := &domains[0]
	if len(d0.Models) != 1 {
		t.Fatalf("expected 1 model in domain 0; got %d", len(d0.Models))
	}
	m := d0.Models[0]
	if m.Filename != "bunny.ply" {
		t.Fatalf("expected bunny.ply; got %s", m.Filename)
	}
	matte, ok := m.Material.(*Matte)
	if !ok {
		t.Fatalf("expected matte material; got %T", m.Material)
	}
	if matte.Kd != (types.Vec3{0.2, 0.4, 0.6}) {
		t.Fatalf("unexpected albedo %v", matte.Kd)
	}
	if len(m.Ops) != 3 {
		t.Fatalf("expected 3 transform ops; got %d", len(m.Ops))
	}

	d1 := &domains[1]
	if len(d1.Shapes) != 2 {
		t.Fatalf("expected 2 spheres in domain 1; got %d", len(d1.Shapes))
	}
	metal, ok := d1.Shapes[0].Material.(*Metal)
	if !ok {
		t.Fatalf("expected metal sphere; got %T", d1.Shapes[0].Material)
	}
	if metal.Fuzz != 0.1 {
		t.Fatalf("expected fuzz 0.1; got %f", metal.Fuzz)
	}

	pl, ok := lights[0].(*PointLight)
	if !ok {
		t.Fatalf("expected point light first; got %T", lights[0])
	}
	if pl.Position != (types.Vec3{1, 2, 3}) {
		t.Fatalf("unexpected light position %v", pl.Position)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	domains, lights, err := LoadDescriptor(writeTempDescriptor(t, testDescriptor), "", 1)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteDescriptor(&buf, domains, lights); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	domains2, lights2, err := LoadDescriptor(writeTempDescriptor(t, buf.String()), "", 1)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}

	if len(domains2) != len(domains) || len(lights2) != len(lights) {
		t.Fatalf("expected %d domains and %d lights; got %d and %d",
			len(domains), len(lights), len(domains2), len(lights2))
	}

	// Re-emitting the reparse must be byte-identical to the first emit.
	var buf2 bytes.Buffer
	if err := WriteDescriptor(&buf2, domains2, lights2); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if buf.String() != buf2.String() {
		t.Fatalf("descriptor did not round trip:\nfirst:\n%s\nsecond:\n%s", buf.String(), buf2.String())
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"unknown tag", "domain\nbogus 1 2 3\n"},
		{"file outside model", "domain\nfile x.ply\n"},
		{"double material", "domain\nModelBegin\nfile x.ply\nmaterial matte\nmaterial metal\nModelEnd\n"},
		{"unterminated model", "domain\nModelBegin\nfile x.ply\n"},
		{"no domains", "light point 0 0 0 1 1 1\n"},
		{"bad axis", "domain\nModelBegin\nfile x.ply\nrotate w 90\nModelEnd\n"},
		{"sphere outside domain", "sphere 0 0 0 1 matte 1 1 1\n"},
	}

	for _, tc := range cases {
		_, _, err := LoadDescriptor(writeTempDescriptor(t, tc.content), "", 1)
		if err == nil {
			t.Fatalf("%s: expected parse error; got none", tc.name)
		}
	}
}
