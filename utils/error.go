package utils

import (
	"context"
	"errors"
)

// ErrorIsAnyOf reports whether errors.Is(err, target) holds for any target.
func ErrorIsAnyOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsCancellation reports whether err comes from a cancelled or expired
// context.
func IsCancellation(err error) bool {
	return ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded)
}
