package gpio

// FakeOutput is a test double that records every value written to it.
type FakeOutput struct {
	// History contains every value passed to Set, in order.
	History []bool

	// On is the current logical state of the line.
	On bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set and the state is left unchanged.
	SetError error
}

// NewFakeOutput creates a FakeOutput in the inactive state.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the value and updates the current state.
func (f *FakeOutput) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, on)
	f.On = on
	return nil
}

// Close drives the line inactive and marks the output as closed.
func (f *FakeOutput) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// Toggles returns how many times the recorded state changed, starting from inactive.
func (f *FakeOutput) Toggles() int {
	n := 0
	prev := false
	for _, v := range f.History {
		if v != prev {
			n++
		}
		prev = v
	}
	return n
}

// Reset clears the recorded history.
func (f *FakeOutput) Reset() {
	f.History = nil
	f.On = false
	f.Closed = false
	f.SetError = nil
}
