package netstatus_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fermata-audio/fermata/internal/netstatus"
)

func writeIfaceFile(t *testing.T, root, iface, name, content string) {
	t.Helper()
	dir := filepath.Join(root, iface)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create iface dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write iface file: %v", err)
	}
}

func TestEthernetDetected(t *testing.T) {
	root := t.TempDir()
	writeIfaceFile(t, root, "eth0", "carrier", "1\n")

	c := netstatus.NewCheckerWithRoot(root)
	if got := c.Current().Type; got != "ethernet" {
		t.Errorf("Expected ethernet, got %s", got)
	}
	if !c.Unmetered() {
		t.Error("Ethernet should count as unmetered")
	}
}

func TestWifiDetected(t *testing.T) {
	root := t.TempDir()
	writeIfaceFile(t, root, "eth0", "carrier", "0\n")
	writeIfaceFile(t, root, "wlan0", "operstate", "up\n")

	c := netstatus.NewCheckerWithRoot(root)
	if got := c.Current().Type; got != "wifi" {
		t.Errorf("Expected wifi, got %s", got)
	}
}

func TestNoNetwork(t *testing.T) {
	root := t.TempDir()
	writeIfaceFile(t, root, "wlan0", "operstate", "down\n")

	c := netstatus.NewCheckerWithRoot(root)
	if got := c.Current().Type; got != "none" {
		t.Errorf("Expected none, got %s", got)
	}
	if c.Unmetered() {
		t.Error("No network should not be unmetered")
	}
}

func TestEthernetPreferredOverWifi(t *testing.T) {
	root := t.TempDir()
	writeIfaceFile(t, root, "eth0", "carrier", "1")
	writeIfaceFile(t, root, "wlan0", "operstate", "up")

	c := netstatus.NewCheckerWithRoot(root)
	if got := c.Current().Type; got != "ethernet" {
		t.Errorf("Wired connection should win, got %s", got)
	}
}
