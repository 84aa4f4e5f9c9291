package game

// DefaultGamma is the discount applied to successor values.
const DefaultGamma = 0.9

// Agent is a value-function agent.
type Agent interface {
	// Predict estimates the value of a position. Positive values favour White.
	Predict(board LayerBoard) (float64, error)
	// SelectMove picks one of moves given the values of their successor positions.
	SelectMove(moves []Move, values []float64) (Move, error)
}

// Colored is implemented by agents that play a side.
type Colored interface {
	Color() Color
}
