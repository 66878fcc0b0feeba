package service

import (
	"errors"

	"vo-performance-bot/internal/transport"
)

var (
	// ErrRepositoryUnavailable marks a failed repository read; the cycle aborts.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrRecipientUnreachable marks a recipient that could not be delivered to.
	ErrRecipientUnreachable = transport.ErrUnreachable
	// ErrSchedulerSetup marks a fatal startup failure such as an unresolvable
	// broadcast destination.
	ErrSchedulerSetup = errors.New("scheduler setup failed")
	// ErrPeriodicTask wraps any error returned by a scheduled cycle.
	ErrPeriodicTask = errors.New("periodic task failed")
)
