package renderer

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.1/glfw"

	"github.com/hyungman/SpRay/types"
)

const (
	// Coefficients for converting delta cursor movements to yaw/pitch camera angles.
	mouseSensitivityX float32 = 0.005
	mouseSensitivityY float32 = 0.005

	// Camera movement speed
	cameraMoveSpeed float32 = 0.05
)

// RenderInteractive opens a GLFW window and re-traces the frame whenever
// the camera moves. Restricted to a single rank: the preview loop owns the
// master thread that the communicator's funneled discipline reserves.
func (r *Renderer) RenderInteractive() error {
	if !r.comm.IsSingle() {
		return ErrViewModeMultiRank
	}

	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("renderer: failed to initialize glfw: %v", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(r.opts.ImageW, r.opts.ImageH, "spray", nil, nil)
	if err != nil {
		return fmt.Errorf("renderer: could not create opengl window: %v", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return fmt.Errorf("renderer: could not init opengl: %v", err)
	}

	dirty := true
	var lastCursorPos types.Vec2
	var mousePressed bool

	window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}

		var move types.Vec3
		dir := r.camera.LookAt.Sub(r.camera.Position).Normalize()
		right := dir.Cross(r.camera.Up).Normalize()

		switch key {
		case glfw.KeyEscape:
			window.SetShouldClose(true)
			return
		case glfw.KeyUp:
			move = dir
		case glfw.KeyDown:
			move = dir.Neg()
		case glfw.KeyLeft:
			move = right.Neg()
		case glfw.KeyRight:
			move = right
		default:
			return
		}

		var speedScaler float32 = 1.0
		if (mods & glfw.ModShift) == glfw.ModShift {
			speedScaler = 2.0
		}
		step := move.Mul(speedScaler * cameraMoveSpeed * r.sc.Bound().Extent().Len())
		r.camera.Position = r.camera.Position.Add(step)
		r.camera.LookAt = r.camera.LookAt.Add(step)
		r.camera.Update()
		dirty = true
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mod glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		if action == glfw.Press {
			xPos, yPos := w.GetCursorPos()
			lastCursorPos[0], lastCursorPos[1] = float32(xPos), float32(yPos)
			mousePressed = true
		} else {
			mousePressed = false
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xPos, yPos float64) {
		if !mousePressed {
			return
		}
		newPos := types.Vec2{float32(xPos), float32(yPos)}
		delta := lastCursorPos.Sub(newPos)
		lastCursorPos = newPos

		dir := r.camera.LookAt.Sub(r.camera.Position)
		right := dir.Normalize().Cross(r.camera.Up).Normalize()
		dir = dir.Add(right.Mul(delta[0] * mouseSensitivityX * dir.Len()))
		dir = dir.Add(r.camera.Up.Mul(delta[1] * mouseSensitivityY * dir.Len()))
		r.camera.LookAt = r.camera.Position.Add(dir)
		r.camera.Update()
		dirty = true
	})

	frames := 0
	for !window.ShouldClose() {
		glfw.PollEvents()

		if !dirty && (r.opts.NumFrames > 0 && frames >= r.opts.NumFrames) {
			continue
		}
		if dirty {
			frames = 0
			dirty = false
		}

		if err := r.RenderOneFrame(); err != nil {
			return err
		}
		frames++

		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		gl.DrawPixels(int32(r.image.W), int32(r.image.H), gl.RGB, gl.FLOAT, unsafe.Pointer(&r.image.Buf[0]))

		window.SwapBuffers()
	}
	return nil
}

// RenderBoundsView draws the domain bounding boxes as wireframes, colored
// by domain id or by owning rank. Single rank only.
func (r *Renderer) RenderBoundsView(mode ViewMode) error {
	if !r.comm.IsSingle() {
		return ErrViewModeMultiRank
	}

	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("renderer: failed to initialize glfw: %v", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(r.opts.ImageW, r.opts.ImageH, "spray", nil, nil)
	if err != nil {
		return fmt.Errorf("renderer: could not create opengl window: %v", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return fmt.Errorf("renderer: could not init opengl: %v", err)
	}

	for !window.ShouldClose() {
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		r.setupBoundsProjection()

		for i := range r.sc.Domains {
			d := &r.sc.Domains[i]
			if mode == ViewModePartition {
				setRankColor(r.sc.Partition.Rank(d.ID))
			} else {
				setRankColor(d.ID)
			}
			drawWireBox(d.WorldAabb)
		}

		window.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}

func (r *Renderer) setupBoundsProjection() {
	bound := r.sc.Bound()
	extent := bound.Extent().Len()
	center := bound.Center()

	gl.MatrixMode(gl.PROJECTION)
	gl.LoadIdentity()
	aspect := float64(r.opts.ImageW) / float64(r.opts.ImageH)
	gl.Frustum(-aspect*0.1, aspect*0.1, -0.1, 0.1, 0.1, float64(extent)*10)

	gl.MatrixMode(gl.MODELVIEW)
	gl.LoadIdentity()
	gl.Translatef(-center[0], -center[1], -center[2]-extent)
}

var rankColors = []types.Vec3{
	{0.9, 0.2, 0.2},
	{0.2, 0.9, 0.2},
	{0.2, 0.4, 0.9},
	{0.9, 0.9, 0.2},
	{0.9, 0.2, 0.9},
	{0.2, 0.9, 0.9},
}

func setRankColor(id int) {
	c := rankColors[id%len(rankColors)]
	gl.Color3f(c[0], c[1], c[2])
}

func drawWireBox(box types.Aabb) {
	lo, hi := box.Min, box.Max
	corners := [8]types.Vec3{
		{lo[0], lo[1], lo[2]}, {hi[0], lo[1], lo[2]},
		{hi[0], hi[1], lo[2]}, {lo[0], hi[1], lo[2]},
		{lo[0], lo[1], hi[2]}, {hi[0], lo[1], hi[2]},
		{hi[0], hi[1], hi[2]}, {lo[0], hi[1], hi[2]},
	}
	edges := [12][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 0},
		{4, 5}, {5, 6}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}

	gl.Begin(gl.LINES)
	for _, e := range edges {
		a, b := corners[e[0]], corners[e[1]]
		gl.Vertex3f(a[0], a[1], a[2])
		gl.Vertex3f(b[0], b[1], b[2])
	}
	gl.End()
}
