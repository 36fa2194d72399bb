package capture

// Outcome is either Activation or Failure.
type Outcome interface {
	outcome()
}

// Activation is a copy of one layer's output taken off the backend.
type Activation struct {
	Data  []float32
	Shape []int
}

// Failure marks a layer whose output could not be captured.
type Failure struct {
	Err error
}

func (Activation) outcome() {}
func (Failure) outcome()    {}

// Record is the captured result for one layer, in model order.
type Record struct {
	LayerName string
	Type      string
	Outcome   Outcome
}

func (r Record) Activation() (Activation, bool) {
	a, ok := r.Outcome.(Activation)
	return a, ok
}

func (r Record) Failed() bool {
	_, ok := r.Outcome.(Failure)
	return ok || r.Outcome == nil
}

// Err returns the failure cause, or nil for a captured activation.
func (r Record) Err() error {
	if f, ok := r.Outcome.(Failure); ok {
		return f.Err
	}
	return nil
}

// Counts returns how many records captured an activation and how many
// failed.
func Counts(records []Record) (ok, failed int) {
	for _, r := range records {
		if r.Failed() {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}
