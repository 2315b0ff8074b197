package hitrace

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned when an event name cannot be written as a
// marker string, i.e. it holds a NUL byte.
var ErrInvalidName = errors.New("hitrace: name contains NUL byte")

func validateName(op, name string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%s %q: %w", op, name, ErrInvalidName)
	}
	return nil
}
