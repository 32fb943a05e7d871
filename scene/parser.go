package scene

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyungman/SpRay/types"
)

// The descriptor grammar is line oriented: one whitespace-separated record
// per line. Recognized leading tokens:
//
//	# ...                                    comment
//	domain                                   start a new domain
//	ModelBegin / ModelEnd                    model block within a domain
//	file <path>                              mesh file, relative to the ply path
//	material matte [r g b]
//	material metal [r g b fuzz]
//	material dielectric [index]
//	scale x y z | rotate {x|y|z} deg | translate x y z
//	light point x y z r g b
//	light diffuse r g b
//	sphere cx cy cz r {matte|metal|dielectric} ...
type descriptorParser struct {
	plyPath         string
	numLightSamples int

	domains []Domain
	lights  []Light

	curModel *Model
	line     int
}

// LoadDescriptor parses a scene descriptor file. Mesh file paths are
// resolved against plyPath when it is non-empty.
func LoadDescriptor(filename, plyPath string, numLightSamples int) ([]Domain, []Light, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("scene: unable to open descriptor %s: %v", filename, err)
	}
	defer f.Close()

	p := &descriptorParser{plyPath: plyPath, numLightSamples: numLightSamples}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		p.line++
		tokens := strings.Fields(sc.Text())
		if len(tokens) == 0 {
			continue
		}
		if err := p.parseLine(tokens); err != nil {
			return nil, nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scene: reading descriptor %s: %v", filename, err)
	}
	if p.curModel != nil {
		return nil, nil, p.errorf("unterminated ModelBegin block")
	}
	if len(p.domains) == 0 {
		return nil, nil, fmt.Errorf("scene: descriptor %s defines no domains", filename)
	}
	if len(p.lights) == 0 {
		logger.Warning("no lights detected")
	}

	logger.Infof("number of domains: %d", len(p.domains))
	logger.Infof("number of lights: %d", len(p.lights))
	return p.domains, p.lights, nil
}

func (p *descriptorParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("scene: descriptor line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *descriptorParser) currentDomain() (*Domain, error) {
	if len(p.domains) == 0 {
		return nil, p.errorf("statement outside a domain block")
	}
	return &p.domains[len(p.domains)-1], nil
}

func (p *descriptorParser) parseLine(tokens []string) error {
	switch tokens[0] {
	case "domain":
		p.domains = append(p.domains, Domain{ID: len(p.domains)})
		return nil
	case "ModelBegin":
		if _, err := p.currentDomain(); err != nil {
			return err
		}
		if p.curModel != nil {
			return p.errorf("nested ModelBegin")
		}
		p.curModel = &Model{Transform: types.Ident4()}
		return nil
	case "ModelEnd":
		return p.parseModelEnd()
	case "file":
		return p.parseFile(tokens)
	case "material":
		return p.parseMaterial(tokens)
	case "scale":
		return p.parseScale(tokens)
	case "rotate":
		return p.parseRotate(tokens)
	case "translate":
		return p.parseTranslate(tokens)
	case "light":
		return p.parseLight(tokens)
	case "sphere":
		return p.parseSphere(tokens)
	}
	if strings.HasPrefix(tokens[0], "#") {
		return nil
	}
	return p.errorf("unknown tag name %s", tokens[0])
}

func (p *descriptorParser) parseModelEnd() error {
	if p.curModel == nil {
		return p.errorf("ModelEnd without ModelBegin")
	}
	if p.curModel.Filename == "" {
		return p.errorf("model block missing file statement")
	}
	if p.curModel.Material == nil {
		p.curModel.Material = DefaultMatte()
	}
	d, err := p.currentDomain()
	if err != nil {
		return err
	}
	d.Models = append(d.Models, *p.curModel)
	p.curModel = nil
	return nil
}

func (p *descriptorParser) parseFile(tokens []string) error {
	if p.curModel == nil {
		return p.errorf("file statement outside a model block")
	}
	if len(tokens) < 2 {
		return p.errorf("file statement missing path")
	}
	if p.plyPath == "" {
		p.curModel.Filename = tokens[1]
	} else {
		p.curModel.Filename = filepath.Join(p.plyPath, tokens[1])
	}
	return nil
}

func (p *descriptorParser) parseMaterial(tokens []string) error {
	if p.curModel == nil {
		return p.errorf("material statement outside a model block")
	}
	if p.curModel.Material != nil {
		return p.errorf("found more than one material")
	}
	m, err := p.materialFromTokens(tokens[1:])
	if err != nil {
		return err
	}
	p.curModel.Material = m
	return nil
}

func (p *descriptorParser) materialFromTokens(tokens []string) (Material, error) {
	if len(tokens) == 0 {
		return nil, p.errorf("material statement missing kind")
	}

	switch tokens[0] {
	case "matte":
		if len(tokens) == 1 {
			return DefaultMatte(), nil
		}
		if len(tokens) != 4 {
			return nil, p.errorf("matte takes 3 albedo components")
		}
		albedo, err := p.parseVec3(tokens[1:4])
		if err != nil {
			return nil, err
		}
		return &Matte{Kd: albedo}, nil

	case "metal":
		if len(tokens) == 1 {
			return &Metal{Ka: types.Vec3{0.9, 0.9, 0.9}}, nil
		}
		if len(tokens) != 5 {
			return nil, p.errorf("metal takes 3 albedo components and a fuzz value")
		}
		albedo, err := p.parseVec3(tokens[1:4])
		if err != nil {
			return nil, err
		}
		fuzz, err := p.parseFloat(tokens[4])
		if err != nil {
			return nil, err
		}
		return &Metal{Ka: albedo, Fuzz: fuzz}, nil

	case "dielectric":
		if len(tokens) == 1 {
			return &Dielectric{Index: 1.5}, nil
		}
		if len(tokens) != 2 {
			return nil, p.errorf("dielectric takes an index of refraction")
		}
		index, err := p.parseFloat(tokens[1])
		if err != nil {
			return nil, err
		}
		return &Dielectric{Index: index}, nil
	}
	return nil, p.errorf("unsupported material: %s", tokens[0])
}

func (p *descriptorParser) parseScale(tokens []string) error {
	if p.curModel == nil {
		return p.errorf("scale statement outside a model block")
	}
	if len(tokens) != 4 {
		return p.errorf("scale takes 3 components")
	}
	v, err := p.parseVec3(tokens[1:4])
	if err != nil {
		return err
	}
	p.curModel.Transform = p.curModel.Transform.Scale(v)
	p.curModel.Ops = append(p.curModel.Ops, TransformOp{Kind: "scale", V: v})
	return nil
}

func (p *descriptorParser) parseRotate(tokens []string) error {
	if p.curModel == nil {
		return p.errorf("rotate statement outside a model block")
	}
	if len(tokens) != 3 {
		return p.errorf("rotate takes an axis and an angle")
	}

	var axis int
	switch tokens[1] {
	case "x":
		axis = 0
	case "y":
		axis = 1
	case "z":
		axis = 2
	default:
		return p.errorf("invalid axis name %s", tokens[1])
	}

	deg, err := p.parseFloat(tokens[2])
	if err != nil {
		return err
	}
	p.curModel.Transform = p.curModel.Transform.RotateAxis(axis, deg)
	p.curModel.Ops = append(p.curModel.Ops, TransformOp{Kind: "rotate", Axis: tokens[1], Deg: deg})
	return nil
}

func (p *descriptorParser) parseTranslate(tokens []string) error {
	if p.curModel == nil {
		return p.errorf("translate statement outside a model block")
	}
	if len(tokens) != 4 {
		return p.errorf("translate takes 3 components")
	}
	v, err := p.parseVec3(tokens[1:4])
	if err != nil {
		return err
	}
	p.curModel.Transform = p.curModel.Transform.Translate(v)
	p.curModel.Ops = append(p.curModel.Ops, TransformOp{Kind: "translate", V: v})
	return nil
}

func (p *descriptorParser) parseLight(tokens []string) error {
	if len(tokens) < 2 {
		return p.errorf("light statement missing kind")
	}

	switch tokens[1] {
	case "point":
		if len(tokens) != 8 {
			return p.errorf("point light takes a position and a radiance")
		}
		pos, err := p.parseVec3(tokens[2:5])
		if err != nil {
			return err
		}
		radiance, err := p.parseVec3(tokens[5:8])
		if err != nil {
			return err
		}
		p.lights = append(p.lights, &PointLight{Position: pos, Radiance: radiance})
		return nil

	case "diffuse":
		if len(tokens) != 5 {
			return p.errorf("diffuse light takes a radiance")
		}
		radiance, err := p.parseVec3(tokens[2:5])
		if err != nil {
			return err
		}
		p.lights = append(p.lights, &DiffuseHemisphereLight{Radiance: radiance, NumSamples: p.numLightSamples})
		return nil
	}
	return p.errorf("unknown light source %s", tokens[1])
}

func (p *descriptorParser) parseSphere(tokens []string) error {
	d, err := p.currentDomain()
	if err != nil {
		return err
	}
	if len(tokens) < 6 {
		return p.errorf("sphere takes a center, a radius and a material")
	}

	center, err := p.parseVec3(tokens[1:4])
	if err != nil {
		return err
	}
	radius, err := p.parseFloat(tokens[4])
	if err != nil {
		return err
	}
	m, err := p.materialFromTokens(tokens[5:])
	if err != nil {
		return err
	}

	d.Shapes = append(d.Shapes, &Sphere{Center: center, Radius: radius, Material: m})
	return nil
}

func (p *descriptorParser) parseVec3(tokens []string) (types.Vec3, error) {
	var v types.Vec3
	for i := 0; i < 3; i++ {
		f, err := p.parseFloat(tokens[i])
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

func (p *descriptorParser) parseFloat(token string) (float32, error) {
	f, err := strconv.ParseFloat(token, 32)
	if err != nil {
		return 0, p.errorf("bad number %q: %v", token, err)
	}
	return float32(f), nil
}
