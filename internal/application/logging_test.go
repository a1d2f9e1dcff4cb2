package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	t.Parallel()

	validation := &ValidationError{}
	validation.add("times", "at least one time of day is required")

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: ErrNotFound, want: "not_found"},
		{name: "wrapped not found", err: fmt.Errorf("load schedule: %w", ErrNotFound), want: "not_found"},
		{name: "already exists", err: ErrAlreadyExists, want: "already_exists"},
		{name: "invalid transition", err: ErrInvalidTransition, want: "invalid_transition"},
		{name: "snooze exhausted", err: ErrSnoozeBudgetExhausted, want: "snooze_exhausted"},
		{name: "validation", err: validation, want: "validation"},
		{name: "anything else", err: errors.New("disk on fire"), want: "unexpected"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
