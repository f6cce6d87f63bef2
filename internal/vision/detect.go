package vision

import (
	"errors"
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Class identifies what the detector found. Class 0 is the board itself,
// classes 1-6 are white pieces and 7-12 are black pieces.
type Class int

const (
	ClassBoard Class = iota
	ClassWhiteKing
	ClassWhiteQueen
	ClassWhiteRook
	ClassWhiteBishop
	ClassWhiteKnight
	ClassWhitePawn
	ClassBlackKing
	ClassBlackQueen
	ClassBlackRook
	ClassBlackBishop
	ClassBlackKnight
	ClassBlackPawn
)

// NumClasses is the number of classes the detection model was trained with
const NumClasses = 13

// boxChannels is the number of box parameters preceding the per-class scores
// in the detector output (center x, center y, width, height)
const boxChannels = 4

// IsPiece reports whether the class is a chess piece (not the board anchor)
func (c Class) IsPiece() bool {
	return c >= ClassWhiteKing && c <= ClassBlackPawn
}

// FENChar returns the placement-string letter for a piece class.
// White pieces are uppercase, black pieces lowercase.
func (c Class) FENChar() byte {
	switch c {
	case ClassWhiteKing:
		return 'K'
	case ClassWhiteQueen:
		return 'Q'
	case ClassWhiteRook:
		return 'R'
	case ClassWhiteBishop:
		return 'B'
	case ClassWhiteKnight:
		return 'N'
	case ClassWhitePawn:
		return 'P'
	case ClassBlackKing:
		return 'k'
	case ClassBlackQueen:
		return 'q'
	case ClassBlackRook:
		return 'r'
	case ClassBlackBishop:
		return 'b'
	case ClassBlackKnight:
		return 'n'
	case ClassBlackPawn:
		return 'p'
	default:
		return '?'
	}
}

// String returns a human-readable class name
func (c Class) String() string {
	names := [...]string{
		"board",
		"white-king", "white-queen", "white-rook",
		"white-bishop", "white-knight", "white-pawn",
		"black-king", "black-queen", "black-rook",
		"black-bishop", "black-knight", "black-pawn",
	}
	if c < 0 || int(c) >= len(names) {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return names[c]
}

// Detection is a single decoded model detection. Coordinates are the box
// center plus size, normalized to the analyzed image frame. Detections are
// immutable once produced.
type Detection struct {
	Class      Class
	Confidence float32
	X          float32 // center x
	Y          float32 // center y
	W          float32
	H          float32
}

// Bounds returns the axis-aligned box corners (x1, y1, x2, y2)
func (d Detection) Bounds() (float32, float32, float32, float32) {
	halfW := d.W / 2
	halfH := d.H / 2
	return d.X - halfW, d.Y - halfH, d.X + halfW, d.Y + halfH
}

// ErrInputShape indicates a malformed or undersized detector output buffer.
// The caller aborts the current frame when this is returned.
var ErrInputShape = errors.New("vision: detector output has unexpected shape")

// DecodeOutput turns a raw detector output tensor into deduplicated
// detections. The tensor must be float32 with shape [1, 4+NumClasses, N]:
// four box parameters followed by one score per class, for each of N anchors.
//
// For every anchor the arg-max class score is taken; anchors below the
// confidence threshold are dropped, the rest go through greedy NMS with the
// given IoU threshold.
func DecodeOutput(raw *tensor.Dense, confThreshold, iouThreshold float32) ([]Detection, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInputShape)
	}

	shape := raw.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != boxChannels+NumClasses {
		return nil, fmt.Errorf("%w: got %v, want [1 %d N]", ErrInputShape, shape, boxChannels+NumClasses)
	}

	anchors := shape[2]
	data, ok := raw.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: backing data is not float32", ErrInputShape)
	}
	if len(data) < (boxChannels+NumClasses)*anchors {
		return nil, fmt.Errorf("%w: buffer holds %d values, want %d",
			ErrInputShape, len(data), (boxChannels+NumClasses)*anchors)
	}

	detections := make([]Detection, 0, 64)

	for i := 0; i < anchors; i++ {
		var maxScore float32
		classID := 0

		for c := 0; c < NumClasses; c++ {
			score := data[(boxChannels+c)*anchors+i]
			if score > maxScore {
				maxScore = score
				classID = c
			}
		}

		if maxScore <= confThreshold {
			continue
		}

		detections = append(detections, Detection{
			Class:      Class(classID),
			Confidence: maxScore,
			X:          data[0*anchors+i],
			Y:          data[1*anchors+i],
			W:          data[2*anchors+i],
			H:          data[3*anchors+i],
		})
	}

	return nonMaxSuppression(detections, iouThreshold), nil
}

// nonMaxSuppression removes overlapping duplicate detections, keeping the
// highest-confidence box of each overlapping cluster. Suppression is purely
// geometric: overlapping detections of different classes eliminate each other
// too. That matches the detection model this decoder was built against, where
// a piece is never legitimately stacked on another piece.
func nonMaxSuppression(detections []Detection, iouThreshold float32) []Detection {
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]Detection, 0, len(detections))
	active := make([]bool, len(detections))
	for i := range active {
		active[i] = true
	}

	for i := range detections {
		if !active[i] {
			continue
		}
		keep = append(keep, detections[i])

		for j := i + 1; j < len(detections); j++ {
			if active[j] && IoU(detections[i], detections[j]) > iouThreshold {
				active[j] = false
			}
		}
	}

	return keep
}

// IoU computes intersection over union of two detections' boxes
func IoU(a, b Detection) float32 {
	ax1, ay1, ax2, ay2 := a.Bounds()
	bx1, by1, bx2, by2 := b.Bounds()

	ix1 := max32(ax1, bx1)
	iy1 := max32(ay1, by1)
	ix2 := min32(ax2, bx2)
	iy2 := min32(ay2, by2)

	if ix2 < ix1 || iy2 < iy1 {
		return 0
	}

	inter := (ix2 - ix1) * (iy2 - iy1)
	areaA := a.W * a.H
	areaB := b.W * b.H

	return inter / (areaA + areaB - inter)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
