package must

import "fmt"

// Be panics when an internal invariant does not hold.
func Be(expr bool, format string, args ...any) {
	if !expr {
		panic("invariant violated: " + fmt.Sprintf(format, args...))
	}
}

func NilErr(err error) {
	if nil != err {
		panic("expected nil error, got: " + err.Error())
	}
}
