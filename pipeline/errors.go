package pipeline

// FatalRunError aborts a run before any track is processed.
type FatalRunError struct {
	Reason string
	Err    error
}

func (e *FatalRunError) Error() string {
	return "fatal run error: " + e.Reason + ": " + e.Err.Error()
}

func (e *FatalRunError) Unwrap() error {
	return e.Err
}

func fatal(reason string, err error) error {
	return &FatalRunError{Reason: reason, Err: err}
}
