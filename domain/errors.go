package domain

import "errors"

var (
	// ErrNotFound is wrapped by every lookup that misses.
	ErrNotFound       = errors.New("not found")
	ErrInvalidMode    = errors.New("invalid mode")
	ErrInvalidPeriod  = errors.New("invalid kpi period")
	ErrInvalidColumn  = errors.New("invalid kanban column")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidRemind  = errors.New("invalid remind days")
	ErrUnknownEntries = errors.New("no checklist entries selected")
)
