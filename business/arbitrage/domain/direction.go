package domain

// Direction is one way through a venue pair: buy on Source, sell on Target.
type Direction struct {
	Source string
	Target string
}

// String returns a human-readable description of the direction.
func (d Direction) String() string {
	return d.Source + " → " + d.Target
}

// Reverse swaps source and target.
func (d Direction) Reverse() Direction {
	return Direction{Source: d.Target, Target: d.Source}
}
