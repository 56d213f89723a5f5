//go:build !windows

package main

import (
	"github.com/tracehound/ketrace/schema"
	"github.com/tracehound/ketrace/trace"
)

// newPlatformBackend returns a backend whose session start reports
// ErrUnsupportedPlatform; kernel ETW only exists on Windows.
func newPlatformBackend(reg *schema.Registry) *trace.StubBackend {
	return trace.NewStubBackend()
}
