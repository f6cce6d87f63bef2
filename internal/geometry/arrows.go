// Package geometry projects engine moves back into screen coordinates for
// overlay rendering. It is the exact geometric inverse of the grid-cell
// mapping in the vision package; both sides share the same orientation
// convention and the round trip is pinned by tests.
package geometry

import (
	"image/color"

	"github.com/thyrook/boardsight/internal/vision"
)

// Point is a position in the board rect's pixel coordinate frame
type Point struct {
	X float32
	Y float32
}

// Segment is a renderable arrow from one square center to another
type Segment struct {
	From  Point
	To    Point
	Color color.RGBA
}

// rankAlpha fades arrows by rank: the best line is fully opaque, alternatives
// progressively dimmer.
var rankAlpha = []uint8{255, 160, 80}

// MoveColor returns the arrow color for the move at the given rank (0 = best)
func MoveColor(rank int) color.RGBA {
	alpha := rankAlpha[len(rankAlpha)-1]
	if rank >= 0 && rank < len(rankAlpha) {
		alpha = rankAlpha[rank]
	}
	return color.RGBA{G: 255, A: alpha}
}

// SquareToPoint converts a board-relative square to the pixel center of its
// cell. Column 0 is the a-file, row 0 is rank 8 (visually the top under
// WhiteBottom). Returns false when the square is out of range or the rect is
// empty.
func SquareToPoint(col, row int, rect vision.BoardRect, orientation vision.Orientation) (Point, bool) {
	if col < 0 || col > 7 || row < 0 || row > 7 || rect.Empty() {
		return Point{}, false
	}

	if orientation == vision.BlackBottom {
		col = 7 - col
		row = 7 - row
	}

	cellW := rect.W / 8
	cellH := rect.H / 8

	return Point{
		X: rect.X + (float32(col)+0.5)*cellW,
		Y: rect.Y + (float32(row)+0.5)*cellH,
	}, true
}

// decodeSquare turns a two-character algebraic square ("e2") into
// board-relative column and row. File a maps to column 0; rank 1 maps to row
// 7 and rank 8 to row 0.
func decodeSquare(file, rank byte) (col, row int, ok bool) {
	col = int(file) - 'a'
	row = 8 - (int(rank) - '0')
	if col < 0 || col > 7 || row < 0 || row > 7 {
		return 0, 0, false
	}
	return col, row, true
}

// MoveSegment converts a 4-character move code (plus optional promotion
// suffix) into a screen-space segment between the two square centers. Returns
// false for malformed or out-of-range codes.
func MoveSegment(move string, rect vision.BoardRect, orientation vision.Orientation) (Point, Point, bool) {
	if len(move) < 4 {
		return Point{}, Point{}, false
	}

	fromCol, fromRow, ok := decodeSquare(move[0], move[1])
	if !ok {
		return Point{}, Point{}, false
	}
	toCol, toRow, ok := decodeSquare(move[2], move[3])
	if !ok {
		return Point{}, Point{}, false
	}

	from, ok := SquareToPoint(fromCol, fromRow, rect, orientation)
	if !ok {
		return Point{}, Point{}, false
	}
	to, ok := SquareToPoint(toCol, toRow, rect, orientation)
	if !ok {
		return Point{}, Point{}, false
	}

	return from, to, true
}

// MoveSegments converts a ranked move list into renderable segments, skipping
// codes that do not decode.
func MoveSegments(moves []string, rect vision.BoardRect, orientation vision.Orientation) []Segment {
	segments := make([]Segment, 0, len(moves))

	for i, move := range moves {
		from, to, ok := MoveSegment(move, rect, orientation)
		if !ok {
			continue
		}
		segments = append(segments, Segment{
			From:  from,
			To:    to,
			Color: MoveColor(i),
		})
	}

	return segments
}
