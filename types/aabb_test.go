package types

import "testing"

func TestAabbIntersectRay(t *testing.T) {
	box := Aabb{Min: Vec3{-1, -1, -1}, Max: Vec3{1, 1, 1}}

	cases := []struct {
		name   string
		org    Vec3
		dir    Vec3
		hit    bool
		entryT float32
	}{
		{"head on", Vec3{0, 0, 5}, Vec3{0, 0, -1}, true, 4},
		{"miss parallel", Vec3{0, 5, 5}, Vec3{0, 0, -1}, false, 0},
		{"inside origin", Vec3{0, 0, 0}, Vec3{0, 0, 1}, true, 1e-4},
		{"behind", Vec3{0, 0, 5}, Vec3{0, 0, 1}, false, 0},
		{"diagonal", Vec3{2, 2, 2}, Vec3{-1, -1, -1}, true, 1},
	}

	for _, tc := range cases {
		entry, ok := box.IntersectRay(tc.org, tc.dir, 1e-4, FloatInf)
		if ok != tc.hit {
			t.Fatalf("%s: expected hit=%t; got %t", tc.name, tc.hit, ok)
		}
		if ok && absDiff(entry, tc.entryT) > 1e-3 {
			t.Fatalf("%s: expected entry t %f; got %f", tc.name, tc.entryT, entry)
		}
	}
}

func TestAabbUnion(t *testing.T) {
	box := NewAabb()
	if box.Valid() {
		t.Fatalf("expected fresh box to be invalid")
	}

	box.Union(Vec3{1, 2, 3})
	box.Union(Vec3{-1, 0, 5})

	if !box.Valid() {
		t.Fatalf("expected box to be valid after unions")
	}
	if box.Min != (Vec3{-1, 0, 3}) || box.Max != (Vec3{1, 2, 5}) {
		t.Fatalf("unexpected bounds: %v %v", box.Min, box.Max)
	}
}

func TestPackColorRoundTrip(t *testing.T) {
	c := Vec3{0.25, 0.5, 0.75}
	got := UnpackColor(PackColor(c))
	for i := 0; i < 3; i++ {
		if absDiff(got[i], c[i]) > 1.0/255.0 {
			t.Fatalf("component %d: expected ~%f; got %f", i, c[i], got[i])
		}
	}

	if PackColor(Vec3{1, 1, 1}) == InvalidColor {
		t.Fatalf("white must not collide with the invalid sentinel")
	}
}

func absDiff(a, b float32) float32 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
