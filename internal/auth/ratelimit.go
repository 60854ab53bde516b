// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"
)

// Verification resend throttle.
const (
	// ResendLimit is the number of codes an account may be sent per ResendWindow.
	ResendLimit = 3

	// ResendWindow is the trailing window the limit applies to.
	ResendWindow = 60 * time.Minute
)

// ResendDecision contains the result of a resend throttle check.
type ResendDecision struct {
	// Allowed indicates another code may be issued.
	Allowed bool

	// Issued is the number of codes issued within the window.
	Issued int

	// WindowStart is the beginning of the trailing window.
	WindowStart time.Time
}

// ResendWindowStart returns the start of the trailing window ending at now.
func ResendWindowStart(now time.Time) time.Time {
	return now.Add(-ResendWindow)
}

// CheckResend evaluates the throttle given the count of codes issued since
// ResendWindowStart(now).
func CheckResend(issued int, now time.Time) ResendDecision {
	return ResendDecision{
		Allowed:     issued < ResendLimit,
		Issued:      issued,
		WindowStart: ResendWindowStart(now),
	}
}
