package model

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/geometry"
)

var (
	// ErrConfig marks invalid analysis parameters. Runs abort before any work.
	ErrConfig = eris.New("invalid configuration")
	// ErrNoData marks an empty input snapshot.
	ErrNoData = eris.New("no data")
	// ErrInvalidGeometry marks malformed or non-finite geometry.
	ErrInvalidGeometry = geometry.ErrInvalid
)
