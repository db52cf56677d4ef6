package result

type State int

const (
	StateNotFound State = iota
	StateFound
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotFound:
		return "not_found"
	case StateFound:
		return "found"
	case StateError:
		return "error"
	}

	return "unknown"
}

// Of is the outcome of a best-effort lookup. NotFound and Error both mean
// there is no value, but they are reported differently.
type Of[T any] struct {
	state State
	v     *T
	err   error
}

func (r Of[T]) State() State {
	return r.state
}

func (r Of[T]) IsFound() bool {
	return r.state == StateFound
}

func (r Of[T]) Unwrap() *T {
	if r.state != StateFound {
		panic("cannot get value of " + r.state.String() + " result")
	}

	return r.v
}

// Value returns the found value, or nil.
func (r Of[T]) Value() *T {
	if r.state != StateFound {
		return nil
	}

	return r.v
}

func (r Of[T]) Err() error {
	return r.err
}

func Found[T any](v *T) Of[T] {
	return Of[T]{state: StateFound, v: v, err: nil}
}

func NotFound[T any]() Of[T] {
	return Of[T]{state: StateNotFound, v: nil, err: nil}
}

func Err[T any](err error) Of[T] {
	return Of[T]{state: StateError, err: err, v: nil}
}
