package scene

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/hyungman/SpRay/types"
)

// A plyMesh is the raw content of one PLY model file.
type plyMesh struct {
	verts  []types.Vec3
	colors []uint32 // nil when the file has no vertex colors
	faces  []int32
}

type plyProperty struct {
	name    string
	typ     string // scalar type, or the count type for lists
	listTyp string // list item type
	isList  bool
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

// readPly parses an ascii or binary_little_endian PLY file. Files ending in
// .zst are transparently decompressed.
func readPly(path string) (*plyMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open model %s: %v", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("scene: zstd reader for %s: %v", path, err)
		}
		defer dec.Close()
		src = dec
	}

	r := bufio.NewReader(src)

	format, elements, err := readPlyHeader(r, path)
	if err != nil {
		return nil, err
	}

	mesh := &plyMesh{}
	for _, elem := range elements {
		switch elem.name {
		case "vertex":
			if err := readPlyVertices(r, format, elem, mesh, path); err != nil {
				return nil, err
			}
		case "face":
			if err := readPlyFaces(r, format, elem, mesh, path); err != nil {
				return nil, err
			}
		default:
			if err := skipPlyElement(r, format, elem); err != nil {
				return nil, err
			}
		}
	}

	if len(mesh.verts) == 0 {
		return nil, fmt.Errorf("scene: model %s has no vertices", path)
	}
	return mesh, nil
}

func readPlyHeader(r *bufio.Reader, path string) (string, []plyElement, error) {
	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return "", nil, fmt.Errorf("scene: %s is not a ply file", path)
	}

	format := ""
	var elements []plyElement

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return "", nil, fmt.Errorf("scene: %s: truncated ply header", path)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			format = fields[1]
			if format != "ascii" && format != "binary_little_endian" {
				return "", nil, fmt.Errorf("scene: %s: unsupported ply format %s", path, format)
			}
		case "element":
			count, err := strconv.Atoi(fields[2])
			if err != nil {
				return "", nil, fmt.Errorf("scene: %s: bad element count: %v", path, err)
			}
			elements = append(elements, plyElement{name: fields[1], count: count})
		case "property":
			if len(elements) == 0 {
				return "", nil, fmt.Errorf("scene: %s: property before element", path)
			}
			el := &elements[len(elements)-1]
			if fields[1] == "list" {
				el.props = append(el.props, plyProperty{name: fields[4], typ: fields[2], listTyp: fields[3], isList: true})
			} else {
				el.props = append(el.props, plyProperty{name: fields[2], typ: fields[1]})
			}
		case "end_header":
			return format, elements, nil
		default:
			return "", nil, fmt.Errorf("scene: %s: unknown header token %s", path, fields[0])
		}
	}
}

func readPlyVertices(r *bufio.Reader, format string, elem plyElement, mesh *plyMesh, path string) error {
	xi, yi, zi := -1, -1, -1
	ri, gi, bi := -1, -1, -1
	for i, p := range elem.props {
		switch p.name {
		case "x":
			xi = i
		case "y":
			yi = i
		case "z":
			zi = i
		case "red":
			ri = i
		case "green":
			gi = i
		case "blue":
			bi = i
		}
	}
	if xi < 0 || yi < 0 || zi < 0 {
		return fmt.Errorf("scene: %s: vertex element missing x/y/z", path)
	}
	hasColor := ri >= 0 && gi >= 0 && bi >= 0

	mesh.verts = make([]types.Vec3, 0, elem.count)
	if hasColor {
		mesh.colors = make([]uint32, 0, elem.count)
	}

	vals := make([]float64, len(elem.props))
	for v := 0; v < elem.count; v++ {
		if format == "ascii" {
			fields, err := readDataLine(r)
			if err != nil {
				return fmt.Errorf("scene: %s: vertex %d: %v", path, v, err)
			}
			for i := range elem.props {
				vals[i], err = strconv.ParseFloat(fields[i], 64)
				if err != nil {
					return fmt.Errorf("scene: %s: vertex %d: %v", path, v, err)
				}
			}
		} else {
			for i, p := range elem.props {
				x, err := readScalar(r, p.typ)
				if err != nil {
					return fmt.Errorf("scene: %s: vertex %d: %v", path, v, err)
				}
				vals[i] = x
			}
		}

		mesh.verts = append(mesh.verts, types.Vec3{float32(vals[xi]), float32(vals[yi]), float32(vals[zi])})
		if hasColor {
			c := types.Vec3{
				float32(vals[ri] / 255.0),
				float32(vals[gi] / 255.0),
				float32(vals[bi] / 255.0),
			}
			mesh.colors = append(mesh.colors, types.PackColor(c))
		}
	}
	return nil
}

func readPlyFaces(r *bufio.Reader, format string, elem plyElement, mesh *plyMesh, path string) error {
	for f := 0; f < elem.count; f++ {
		var idx []int32

		if format == "ascii" {
			fields, err := readDataLine(r)
			if err != nil {
				return fmt.Errorf("scene: %s: face %d: %v", path, f, err)
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil || len(fields) < n+1 {
				return fmt.Errorf("scene: %s: face %d: bad index list", path, f)
			}
			idx = make([]int32, n)
			for i := 0; i < n; i++ {
				v, err := strconv.Atoi(fields[i+1])
				if err != nil {
					return fmt.Errorf("scene: %s: face %d: %v", path, f, err)
				}
				idx[i] = int32(v)
			}
		} else {
			countProp := elem.props[0]
			n, err := readScalar(r, countProp.typ)
			if err != nil {
				return fmt.Errorf("scene: %s: face %d: %v", path, f, err)
			}
			idx = make([]int32, int(n))
			for i := range idx {
				v, err := readScalar(r, countProp.listTyp)
				if err != nil {
					return fmt.Errorf("scene: %s: face %d: %v", path, f, err)
				}
				idx[i] = int32(v)
			}
		}

		// Triangle-fan split for quads and larger polygons.
		for i := 2; i < len(idx); i++ {
			mesh.faces = append(mesh.faces, idx[0], idx[i-1], idx[i])
		}
	}
	return nil
}

func skipPlyElement(r *bufio.Reader, format string, elem plyElement) error {
	for i := 0; i < elem.count; i++ {
		if format == "ascii" {
			if _, err := readDataLine(r); err != nil {
				return err
			}
			continue
		}
		for _, p := range elem.props {
			if p.isList {
				n, err := readScalar(r, p.typ)
				if err != nil {
					return err
				}
				for j := 0; j < int(n); j++ {
					if _, err := readScalar(r, p.listTyp); err != nil {
						return err
					}
				}
			} else if _, err := readScalar(r, p.typ); err != nil {
				return err
			}
		}
	}
	return nil
}

func readDataLine(r *bufio.Reader) ([]string, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func readScalar(r *bufio.Reader, typ string) (float64, error) {
	switch typ {
	case "char", "int8":
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "uchar", "uint8":
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "short", "int16":
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "ushort", "uint16":
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "int", "int32":
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "uint", "uint32":
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "float", "float32":
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case "double", "float64":
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	}
	return 0, fmt.Errorf("unsupported ply scalar type %s", typ)
}
