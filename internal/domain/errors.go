package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrAllAccountsFailed   = errors.New("failed to fetch matches from all accounts")
	ErrSuperseded          = errors.New("fetch superseded by a newer request")
	ErrInvalidRequest      = errors.New("invalid request")
)

// NotFoundError reports a tracked account missing from a match roster.
type NotFoundError struct {
	Puuid  string
	GameID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tracked puuid %s not found in participants of match %d", e.Puuid, e.GameID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamUnavailable, e.Err}
	}
	return []error{ErrUpstreamUnavailable}
}

// AggregateError is returned when every account in a fan-out failed.
type AggregateError struct {
	Failures map[string]string
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s (%d accounts)", ErrAllAccountsFailed.Error(), len(e.Failures))
}

func (e *AggregateError) Unwrap() error { return ErrAllAccountsFailed }

// FailedAccounts returns the failed account ids in sorted order.
func (e *AggregateError) FailedAccounts() []string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
