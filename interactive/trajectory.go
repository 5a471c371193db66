package interactive

// TrajectoryStep is one iteration of the controller loop: the model's
// reasoning prose, the code it asked to run, and the bounded output that
// came back (spec.md §4.8 step 2).
type TrajectoryStep struct {
	Iteration int
	Reasoning string
	Code      string
	Output    string
	IsError   bool
}
