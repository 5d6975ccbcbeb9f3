// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	ErrMissingAPIHandler = errors.New("daemon: HTTP handler is required")
	// ErrManagerNotStarted is returned by Shutdown before Start.
	ErrManagerNotStarted = errors.New("daemon: server not started")
	ErrManagerStarted    = errors.New("daemon: server already started")
	// ErrMissingComponents is returned by NewApp without a bootstrapped capture manager and API.
	ErrMissingComponents = errors.New("daemon: components are required")
)
