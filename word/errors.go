package word

import "fmt"

// ArithmeticError is panicked by word arithmetic that has no defined result,
// such as division or remainder by zero. The boundary converts it into a
// managed ArithmeticException.
type ArithmeticError struct {
	Op string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("word: %s by zero", e.Op)
}

func checkDivisor[T ~uintptr | ~int](op string, d T) {
	if d == 0 {
		panic(&ArithmeticError{Op: op})
	}
}
