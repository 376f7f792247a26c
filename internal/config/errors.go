package config

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrQuotaExhausted is returned by ReserveRequest when a key has no requests
// left in the current period, or is inactive.
var ErrQuotaExhausted = errors.New("request quota exhausted")

// ErrDatasetLimit is returned by ReserveDataset when the project already
// holds its maximum number of datasets.
var ErrDatasetLimit = errors.New("project dataset limit reached")

// ErrDuplicate is returned when a record collides with an existing unique
// name.
var ErrDuplicate = errors.New("already exists")
