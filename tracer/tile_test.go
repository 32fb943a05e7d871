package tracer

import "testing"

func TestMakeTileList(t *testing.T) {
	tiles := MakeTileList(64, 10, 3, 1)
	if len(tiles) != 3 {
		t.Fatalf("expected 3 tiles; got %d", len(tiles))
	}

	rows := 0
	y := 0
	for i, tile := range tiles {
		if tile.Y != y {
			t.Fatalf("tile %d: expected y %d; got %d", i, y, tile.Y)
		}
		if tile.W != 64 {
			t.Fatalf("tile %d: expected full width; got %d", i, tile.W)
		}
		rows += tile.H
		y += tile.H
	}
	if rows != 10 {
		t.Fatalf("expected tiles to cover 10 rows; got %d", rows)
	}

	// The minimum tile size caps the tile count.
	tiles = MakeTileList(64, 10, 8, 4)
	if len(tiles) != 2 {
		t.Fatalf("expected min tile size to clamp to 2 tiles; got %d", len(tiles))
	}
}

func TestRankStripeCoversImage(t *testing.T) {
	image := Tile{X: 0, Y: 0, W: 32, H: 7}

	rows := 0
	prevEnd := 0
	for rank := 0; rank < 3; rank++ {
		stripe := RankStripe(3, rank, image)
		if stripe.Y != prevEnd {
			t.Fatalf("rank %d: expected stripe to start at row %d; got %d", rank, prevEnd, stripe.Y)
		}
		rows += stripe.H
		prevEnd = stripe.Y + stripe.H
	}
	if rows != 7 {
		t.Fatalf("expected stripes to cover 7 rows; got %d", rows)
	}

	// More ranks than rows: the extra ranks get empty stripes.
	short := Tile{X: 0, Y: 0, W: 4, H: 1}
	if s := RankStripe(2, 1, short); s.H != 0 {
		t.Fatalf("expected an empty stripe for the surplus rank; got height %d", s.H)
	}
	if s := RankStripe(2, 0, short); s.H != 1 {
		t.Fatalf("expected the first rank to take the single row; got height %d", s.H)
	}
}
