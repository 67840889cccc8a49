package jobstate

// Machine holds the current status of one job. Transitions overwrite the
// current status; no history is kept.
type Machine[S Status] struct {
	vocab   *Vocabulary[S]
	current S
}

// NewMachine returns a Machine positioned at the vocabulary's initial status.
func NewMachine[S Status](vocab *Vocabulary[S]) *Machine[S] {
	return &Machine[S]{vocab: vocab, current: vocab.Initial()}
}

// Current returns the present status.
func (m *Machine[S]) Current() S { return m.current }

// Is reports whether the machine is currently in s.
func (m *Machine[S]) Is(s S) bool { return m.current == s }

// CanTransition reports whether TransitionTo(target) would succeed.
func (m *Machine[S]) CanTransition(target S) bool {
	return m.vocab.CanTransition(m.current, target)
}

// TransitionTo moves the machine to target. An illegal move leaves the
// current status untouched and returns an error wrapping ErrInvalidTransition.
func (m *Machine[S]) TransitionTo(target S) error {
	if err := m.vocab.ValidateTransition(m.current, target); err != nil {
		return err
	}
	m.current = target
	return nil
}

// Reset returns the machine to the vocabulary's initial status.
func (m *Machine[S]) Reset() { m.current = m.vocab.Initial() }

// Presentation derives the label and icon for the current status.
func (m *Machine[S]) Presentation() Presentation { return m.vocab.Present(m.current) }

// Label is shorthand for Presentation().Label.
func (m *Machine[S]) Label() string { return m.Presentation().Label }

// Icon is shorthand for Presentation().Icon.
func (m *Machine[S]) Icon() string { return m.Presentation().Icon }

// Vocabulary returns the vocabulary backing the machine.
func (m *Machine[S]) Vocabulary() *Vocabulary[S] { return m.vocab }
