package state

// Slice is a unit of named, serializable application state.
type Slice interface {
	// Serialize returns a plain value (maps, slices, scalars).
	Serialize() any
	// Deserialize restores the slice from a value produced by Serialize.
	Deserialize(v any) error
}

// Kind identifies a slice type by a stable name and knows how to build it
// from construction props.
type Kind[S Slice, P any] struct {
	Name string
	New  func(P) S
}

// Define declares a slice kind.
func Define[S Slice, P any](name string, newFn func(P) S) Kind[S, P] {
	return Kind[S, P]{Name: name, New: newFn}
}
