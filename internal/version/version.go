// ABOUTME: Version and product identification constants
// ABOUTME: Used in mDNS advertisements and panel handshakes
package version

const (
	Version      = "0.3.0"
	Product      = "Glowsync Panel"
	Manufacturer = "Glowsync"
)
