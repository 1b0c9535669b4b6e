//go:build !windows

package main

// NewSimConnectProvider is Windows-only; other platforms fall through to
// the X-Plane UDP provider.
func NewSimConnectProvider() SimDataProvider {
	return nil
}
