package game

import (
	"errors"
	"fmt"
)

const (
	Planes = 8 // feature planes
	Ranks  = 8
	Files  = 8

	// BoardSize is the number of scalars in a LayerBoard.
	BoardSize = Planes * Ranks * Files
)

// Feature plane indices of a LayerBoard.
const (
	PawnPlane = iota
	RookPlane
	KnightPlane
	BishopPlane
	QueenPlane
	KingPlane
)

var (
	ErrShape          = errors.New("game: layer board must hold 8x8x8 values")
	ErrNoMoves        = errors.New("game: no moves to select from")
	ErrLengthMismatch = errors.New("game: moves and values differ in length")
)

// Color is the side an agent plays. It is used as a multiplicative factor on values.
type Color int

const (
	White Color = 1
	Black Color = -1
)

// Valid reports whether c is White or Black.
func (c Color) Valid() bool {
	return c == White || c == Black
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// Move is an opaque move token owned by the environment.
type Move any

// LayerBoard is the tensor encoding of a position: planes x ranks x files.
// White pieces are encoded as +1, black pieces as -1.
type LayerBoard [Planes][Ranks][Files]float64

// NewLayerBoard builds a LayerBoard from plane-major flat data.
func NewLayerBoard(data []float64) (LayerBoard, error) {
	var b LayerBoard
	if len(data) != BoardSize {
		return b, fmt.Errorf("%w: got %d values", ErrShape, len(data))
	}
	i := 0
	for p := 0; p < Planes; p++ {
		for r := 0; r < Ranks; r++ {
			for f := 0; f < Files; f++ {
				b[p][r][f] = data[i]
				i++
			}
		}
	}
	return b, nil
}

// Flatten appends the plane-major values of b to dst.
func (b *LayerBoard) Flatten(dst []float64) []float64 {
	for p := range b {
		for r := range b[p] {
			dst = append(dst, b[p][r][:]...)
		}
	}
	return dst
}

// PlaneSum returns the sum of one feature plane.
func (b *LayerBoard) PlaneSum(plane int) float64 {
	var sum float64
	for r := range b[plane] {
		for _, v := range b[plane][r] {
			sum += v
		}
	}
	return sum
}

// FlattenBatch flattens boards into one plane-major slice.
func FlattenBatch(boards []LayerBoard) []float64 {
	data := make([]float64, 0, len(boards)*BoardSize)
	for i := range boards {
		data = boards[i].Flatten(data)
	}
	return data
}
