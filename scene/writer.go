package scene

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/hyungman/SpRay/types"
)

// WriteDescriptor re-emits a parsed scene in descriptor form. Parsing the
// output yields the same domains and lights; transform statements are
// preserved in source order.
func WriteDescriptor(w io.Writer, domains []Domain, lights []Light) error {
	bw := bufio.NewWriter(w)

	for _, l := range lights {
		switch lt := l.(type) {
		case *PointLight:
			fmt.Fprintf(bw, "light point %s %s\n", fmtVec3(lt.Position), fmtVec3(lt.Radiance))
		case *DiffuseHemisphereLight:
			fmt.Fprintf(bw, "light diffuse %s\n", fmtVec3(lt.Radiance))
		}
	}

	for i := range domains {
		d := &domains[i]
		fmt.Fprintf(bw, "domain\n")

		for _, m := range d.Models {
			fmt.Fprintf(bw, "ModelBegin\n")
			fmt.Fprintf(bw, "file %s\n", m.Filename)
			fmt.Fprintf(bw, "material %s\n", fmtMaterial(m.Material))
			for _, op := range m.Ops {
				switch op.Kind {
				case "scale", "translate":
					fmt.Fprintf(bw, "%s %s\n", op.Kind, fmtVec3(op.V))
				case "rotate":
					fmt.Fprintf(bw, "rotate %s %s\n", op.Axis, fmtFloat(op.Deg))
				}
			}
			fmt.Fprintf(bw, "ModelEnd\n")
		}

		for _, sh := range d.Shapes {
			fmt.Fprintf(bw, "sphere %s %s %s\n", fmtVec3(sh.Center), fmtFloat(sh.Radius), fmtMaterial(sh.Material))
		}
	}

	return bw.Flush()
}

// SaveDescriptor writes a descriptor to a file.
func SaveDescriptor(filename string, domains []Domain, lights []Light) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("scene: unable to create descriptor %s: %v", filename, err)
	}
	defer f.Close()
	return WriteDescriptor(f, domains, lights)
}

func fmtMaterial(m Material) string {
	switch mt := m.(type) {
	case *Matte:
		return fmt.Sprintf("matte %s", fmtVec3(mt.Kd))
	case *Metal:
		return fmt.Sprintf("metal %s %s", fmtVec3(mt.Ka), fmtFloat(mt.Fuzz))
	case *Dielectric:
		return fmt.Sprintf("dielectric %s", fmtFloat(mt.Index))
	}
	return "matte"
}

func fmtVec3(v types.Vec3) string {
	return fmt.Sprintf("%s %s %s", fmtFloat(v[0]), fmtFloat(v[1]), fmtFloat(v[2]))
}

func fmtFloat(f float32) string {
	return fmt.Sprintf("%g", f)
}
