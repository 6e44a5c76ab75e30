// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager construction and daemon address formatting
package discovery

import (
	"testing"
)

func TestNewManager(t *testing.T) {
	config := Config{
		ServiceName: "Test Panel",
		Port:        8930,
	}

	mgr := NewManager(config)
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
}

func TestDaemonBaseURL(t *testing.T) {
	d := &DaemonInfo{Name: "fpp.local", Host: "192.168.8.1", Port: 80}
	if got := d.BaseURL(); got != "http://192.168.8.1:80" {
		t.Errorf("unexpected base URL: %s", got)
	}
}
