//go:build windows

package main

import (
	"github.com/tracehound/ketrace/schema"
	"github.com/tracehound/ketrace/trace"
)

// newPlatformBackend returns the real kernel-ETW backend.
func newPlatformBackend(reg *schema.Registry) *trace.WindowsBackend {
	return trace.NewWindowsBackend(reg)
}
