package vision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Orientation says which side of the captured image corresponds to rank 1.
// It is recomputed from detections on every pass and never cached, since the
// player can flip the board at any time.
type Orientation int

const (
	WhiteBottom Orientation = iota
	BlackBottom
)

// String returns a human-readable orientation name
func (o Orientation) String() string {
	if o == BlackBottom {
		return "black-bottom"
	}
	return "white-bottom"
}

// BoardRect is the board's bounding box in the same coordinate frame as the
// detections it was derived from.
type BoardRect struct {
	X float32
	Y float32
	W float32
	H float32
}

// Empty reports whether the rect has no area
func (r BoardRect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// EmptyPlacement is the placement string of a board with no pieces. It is the
// neutral value returned when no board anchor is found.
const EmptyPlacement = "8/8/8/8/8/8/8/8"

// minBoardSpan rejects spurious tiny board detections; a real board covers a
// substantial part of the captured region.
const minBoardSpan = 0.2

// ErrValidation signals that the reconstructed position failed the king-count
// sanity check. It is an expected steady-state condition while pieces are in
// motion, not a fault: the caller skips the cycle and keeps prior results.
var ErrValidation = errors.New("vision: king count validation failed")

// BoardPass is the result of one successful recognition pass
type BoardPass struct {
	Placement   string
	Rect        BoardRect
	Orientation Orientation
}

// rawPiece is a piece detection resolved to a board-relative cell, held
// before the grid is populated so heuristics can still reclassify it.
type rawPiece struct {
	row        int
	col        int
	class      Class
	confidence float32
}

// findBoardAnchor selects the board detection to anchor the grid on: among
// board-class detections larger than the minimum span, the one with the
// highest confidence.
func findBoardAnchor(detections []Detection) (Detection, bool) {
	var best Detection
	found := false

	for _, d := range detections {
		if d.Class != ClassBoard || d.W <= minBoardSpan || d.H <= minBoardSpan {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}

	return best, found
}

// InferOrientation derives the board orientation from the vertical
// distribution of pawn detections. White pawns sitting lower on the screen
// (larger Y) than black pawns means white plays from the bottom. If either
// color has no pawn detections the orientation defaults to WhiteBottom.
func InferOrientation(detections []Detection) Orientation {
	var whiteSum, blackSum float32
	var whiteCount, blackCount int

	for _, d := range detections {
		switch d.Class {
		case ClassWhitePawn:
			whiteSum += d.Y
			whiteCount++
		case ClassBlackPawn:
			blackSum += d.Y
			blackCount++
		}
	}

	if whiteCount == 0 || blackCount == 0 {
		return WhiteBottom
	}

	if whiteSum/float32(whiteCount) > blackSum/float32(blackCount) {
		return WhiteBottom
	}
	return BlackBottom
}

// resolvePieces maps every piece detection whose center falls inside the
// board bounds to a board-relative cell, then applies the duplicate-king
// reclassification.
func resolvePieces(detections []Detection, anchor Detection, orientation Orientation) []rawPiece {
	bx1, by1, bx2, by2 := anchor.Bounds()
	cellW := (bx2 - bx1) / 8
	cellH := (by2 - by1) / 8

	pieces := make([]rawPiece, 0, len(detections))

	for _, d := range detections {
		if !d.Class.IsPiece() {
			continue
		}
		if d.X < bx1 || d.X > bx2 || d.Y < by1 || d.Y > by2 {
			continue
		}

		vCol := int((d.X - bx1) / cellW)
		vRow := int((d.Y - by1) / cellH)
		if vCol < 0 || vCol >= 8 || vRow < 0 || vRow >= 8 {
			continue
		}

		row, col := vRow, vCol
		if orientation == BlackBottom {
			row, col = 7-vRow, 7-vCol
		}

		pieces = append(pieces, rawPiece{
			row:        row,
			col:        col,
			class:      d.Class,
			confidence: d.Confidence,
		})
	}

	fixDuplicateKings(pieces)
	return pieces
}

// fixDuplicateKings compensates for a known detector confusion mode: the
// black king read as a second white king. When exactly two white kings and
// no black king were detected, the one closest to the black side (smallest
// board-relative row) becomes the black king. Under any other count mismatch
// no recovery is attempted and validation rejects the pass.
func fixDuplicateKings(pieces []rawPiece) {
	whiteKings := make([]int, 0, 2)
	blackKings := 0

	for i, p := range pieces {
		switch p.class {
		case ClassWhiteKing:
			whiteKings = append(whiteKings, i)
		case ClassBlackKing:
			blackKings++
		}
	}

	if len(whiteKings) != 2 || blackKings != 0 {
		return
	}

	target := whiteKings[0]
	for _, idx := range whiteKings[1:] {
		if pieces[idx].row < pieces[target].row {
			target = idx
		}
	}
	pieces[target].class = ClassBlackKing
}

// ReconstructWithOrientation builds the placement string and board rect for
// one recognition pass under a fixed orientation. When no board anchor is
// present it returns the empty placement and a zero rect rather than an
// error, so callers can treat "no board on screen" as a quiet no-op.
func ReconstructWithOrientation(detections []Detection, orientation Orientation) (string, BoardRect) {
	anchor, ok := findBoardAnchor(detections)
	if !ok {
		return EmptyPlacement, BoardRect{}
	}

	bx1, by1, bx2, by2 := anchor.Bounds()
	rect := BoardRect{X: bx1, Y: by1, W: bx2 - bx1, H: by2 - by1}

	pieces := resolvePieces(detections, anchor, orientation)

	// Later writes for the same cell overwrite earlier ones.
	var grid [8][8]byte
	for _, p := range pieces {
		grid[p.row][p.col] = p.class.FENChar()
	}

	return serializePlacement(grid), rect
}

// serializePlacement run-length encodes the grid into the standard placement
// field, rank 8 first, ranks separated by '/'.
func serializePlacement(grid [8][8]byte) string {
	var sb strings.Builder

	for row := 0; row < 8; row++ {
		if row > 0 {
			sb.WriteByte('/')
		}

		empty := 0
		for col := 0; col < 8; col++ {
			if grid[row][col] == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(grid[row][col])
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
	}

	return sb.String()
}

// Reconstruct runs the full two-pass board reconstruction: a neutral
// orientation pass locates the board, orientation is inferred from the piece
// distribution, and the grid is rebuilt with the correct mapping. The pass
// succeeds only if exactly one king per color was resolved.
func Reconstruct(detections []Detection) (*BoardPass, error) {
	anchor, ok := findBoardAnchor(detections)
	if !ok {
		return nil, fmt.Errorf("%w: no board anchor (kings W:0 B:0)", ErrValidation)
	}

	orientation := InferOrientation(detections)

	pieces := resolvePieces(detections, anchor, orientation)
	whiteKings, blackKings := 0, 0
	for _, p := range pieces {
		switch p.class {
		case ClassWhiteKing:
			whiteKings++
		case ClassBlackKing:
			blackKings++
		}
	}
	if whiteKings != 1 || blackKings != 1 {
		return nil, fmt.Errorf("%w: kings W:%d B:%d", ErrValidation, whiteKings, blackKings)
	}

	placement, rect := ReconstructWithOrientation(detections, orientation)

	return &BoardPass{
		Placement:   placement,
		Rect:        rect,
		Orientation: orientation,
	}, nil
}

// PositionFEN pairs a placement string with a side to move, producing a full
// FEN the engine can analyze. The result is parsed once as a sanity check
// before it is handed to the engine.
func PositionFEN(placement string, whiteToMove bool) (string, error) {
	turn := "w"
	if !whiteToMove {
		turn = "b"
	}

	fen := fmt.Sprintf("%s %s - - 0 1", placement, turn)
	if _, err := chess.FEN(fen); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return fen, nil
}

// PointToSquare maps a pixel point inside the board rect back to a
// board-relative square. It is the inverse of the cell mapping used during
// reconstruction and of geometry.SquareToPoint.
func PointToSquare(x, y float32, rect BoardRect, orientation Orientation) (col, row int, ok bool) {
	if rect.Empty() {
		return 0, 0, false
	}

	vCol := int((x - rect.X) / (rect.W / 8))
	vRow := int((y - rect.Y) / (rect.H / 8))
	if vCol < 0 || vCol >= 8 || vRow < 0 || vRow >= 8 {
		return 0, 0, false
	}

	if orientation == BlackBottom {
		return 7 - vCol, 7 - vRow, true
	}
	return vCol, vRow, true
}
