package geometry

import (
	"testing"

	"github.com/thyrook/boardsight/internal/vision"
)

func testRect() vision.BoardRect {
	return vision.BoardRect{X: 0, Y: 0, W: 800, H: 800}
}

func TestSquareToPoint(t *testing.T) {
	tests := []struct {
		name        string
		col, row    int
		orientation vision.Orientation
		wantX       float32
		wantY       float32
	}{
		{
			name: "A8 top-left white-bottom",
			col:  0, row: 0,
			orientation: vision.WhiteBottom,
			wantX:       50, wantY: 50,
		},
		{
			name: "H1 bottom-right white-bottom",
			col:  7, row: 7,
			orientation: vision.WhiteBottom,
			wantX:       750, wantY: 750,
		},
		{
			name: "A8 mirrors to bottom-right black-bottom",
			col:  0, row: 0,
			orientation: vision.BlackBottom,
			wantX:       750, wantY: 750,
		},
		{
			name: "E4 white-bottom",
			col:  4, row: 4,
			orientation: vision.WhiteBottom,
			wantX:       450, wantY: 450,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := SquareToPoint(tt.col, tt.row, testRect(), tt.orientation)
			if !ok {
				t.Fatal("Expected conversion to succeed")
			}
			if p.X != tt.wantX || p.Y != tt.wantY {
				t.Errorf("Expected (%f,%f), got (%f,%f)", tt.wantX, tt.wantY, p.X, p.Y)
			}
		})
	}
}

func TestSquareToPointRejects(t *testing.T) {
	if _, ok := SquareToPoint(-1, 0, testRect(), vision.WhiteBottom); ok {
		t.Error("Expected negative column to fail")
	}
	if _, ok := SquareToPoint(0, 8, testRect(), vision.WhiteBottom); ok {
		t.Error("Expected row 8 to fail")
	}
	if _, ok := SquareToPoint(0, 0, vision.BoardRect{}, vision.WhiteBottom); ok {
		t.Error("Expected empty rect to fail")
	}
}

// Every square center must map back to the square it came from, for both
// orientations. This keeps the overlay mapping and the recognition grid in
// lockstep.
func TestSquarePointRoundTrip(t *testing.T) {
	rect := vision.BoardRect{X: 120, Y: 40, W: 640, H: 640}

	for _, orientation := range []vision.Orientation{vision.WhiteBottom, vision.BlackBottom} {
		for col := 0; col < 8; col++ {
			for row := 0; row < 8; row++ {
				p, ok := SquareToPoint(col, row, rect, orientation)
				if !ok {
					t.Fatalf("SquareToPoint(%d,%d,%s) failed", col, row, orientation)
				}

				gotCol, gotRow, ok := vision.PointToSquare(p.X, p.Y, rect, orientation)
				if !ok {
					t.Fatalf("PointToSquare missed center of (%d,%d,%s)", col, row, orientation)
				}
				if gotCol != col || gotRow != row {
					t.Errorf("Round trip (%d,%d,%s) became (%d,%d)",
						col, row, orientation, gotCol, gotRow)
				}
			}
		}
	}
}

func TestMoveSegment(t *testing.T) {
	// e2: col 4, row 6; e4: col 4, row 4.
	from, to, ok := MoveSegment("e2e4", testRect(), vision.WhiteBottom)
	if !ok {
		t.Fatal("Expected e2e4 to decode")
	}
	if from.X != 450 || from.Y != 650 {
		t.Errorf("Expected e2 at (450,650), got (%f,%f)", from.X, from.Y)
	}
	if to.X != 450 || to.Y != 450 {
		t.Errorf("Expected e4 at (450,450), got (%f,%f)", to.X, to.Y)
	}

	// Same move seen from the black side is mirrored on both axes.
	from, to, ok = MoveSegment("e2e4", testRect(), vision.BlackBottom)
	if !ok {
		t.Fatal("Expected e2e4 to decode")
	}
	if from.X != 350 || from.Y != 150 {
		t.Errorf("Expected mirrored e2 at (350,150), got (%f,%f)", from.X, from.Y)
	}
	if to.X != 350 || to.Y != 350 {
		t.Errorf("Expected mirrored e4 at (350,350), got (%f,%f)", to.X, to.Y)
	}

	// Promotion suffix is carried but ignored for geometry.
	if _, _, ok := MoveSegment("e7e8q", testRect(), vision.WhiteBottom); !ok {
		t.Error("Expected promotion move to decode")
	}
}

func TestMoveSegmentMalformed(t *testing.T) {
	tests := []string{"", "e2", "e2e", "z2e4", "e0e4", "e9e4", "e2z4"}

	for _, move := range tests {
		if _, _, ok := MoveSegment(move, testRect(), vision.WhiteBottom); ok {
			t.Errorf("Expected %q to be rejected", move)
		}
	}
}

func TestMoveSegments(t *testing.T) {
	moves := []string{"e2e4", "bogus", "g1f3"}
	segments := MoveSegments(moves, testRect(), vision.WhiteBottom)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	// The undecodable entry is skipped but ranks follow the original list, so
	// the knight move keeps the third-rank color.
	if segments[0].Color.A != 255 {
		t.Errorf("Expected best move alpha 255, got %d", segments[0].Color.A)
	}
	if segments[1].Color.A != 80 {
		t.Errorf("Expected rank-2 alpha 80, got %d", segments[1].Color.A)
	}
}

func TestMoveColor(t *testing.T) {
	tests := []struct {
		rank int
		want uint8
	}{
		{0, 255},
		{1, 160},
		{2, 80},
		{3, 80},
		{10, 80},
		{-1, 80},
	}

	for _, tt := range tests {
		if got := MoveColor(tt.rank).A; got != tt.want {
			t.Errorf("Rank %d: expected alpha %d, got %d", tt.rank, tt.want, got)
		}
	}
}
