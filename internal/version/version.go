// ABOUTME: Version information for emusync
// ABOUTME: Product strings logged at startup and shown in the TUI
package version

const (
	// Version is the current release
	Version = "0.3.0"

	// Product is the application name
	Product = "emusync"

	// Manufacturer identifies the maintainers
	Manufacturer = "emusync contributors"
)
