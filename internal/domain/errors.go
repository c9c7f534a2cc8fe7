// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrProviderNotFound indicates no registered provider id could be resolved
// for a workspace, neither from an explicit hint nor from the persisted binding.
var ErrProviderNotFound = errors.New("workspace provider not found")
