package domain

import "errors"

var ErrNotFound = errors.New("not found")

// NotFoundError is the only error the ledger surfaces to callers. Msg names
// the entity kind and id, or states that no records exist.
type NotFoundError struct {
	Msg string `json:"msg"`
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
