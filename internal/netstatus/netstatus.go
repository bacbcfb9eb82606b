// Package netstatus probes the current network connection.
// The album art download policy uses it to decide whether a "wifi only"
// download is allowed right now; the transport pushes it to clients for
// the status display.
package netstatus

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Status represents the current network connection status.
type Status struct {
	Type     string `json:"type"`     // "wifi", "ethernet", "none"
	SSID     string `json:"ssid"`     // WiFi network name (if wifi)
	Signal   int    `json:"signal"`   // WiFi signal strength 0-100 (if wifi)
	IP       string `json:"ip"`       // IP address
	Strength int    `json:"strength"` // Signal strength level 0-3 (for icon)
}

// Checker reports the kind of network the device is on.
type Checker struct {
	sysClassNet string
}

// NewChecker creates a checker reading from /sys/class/net.
func NewChecker() *Checker {
	return &Checker{sysClassNet: "/sys/class/net"}
}

// NewCheckerWithRoot creates a checker reading interface state from an
// alternate directory (useful for testing).
func NewCheckerWithRoot(root string) *Checker {
	return &Checker{sysClassNet: root}
}

// Current returns the current network status. Wired interfaces are checked
// first; a carrier on either implies an unmetered connection.
func (c *Checker) Current() Status {
	// Ethernet first (usually eth0 or end0 on newer Pi)
	for _, iface := range []string{"eth0", "end0"} {
		carrierPath := filepath.Join(c.sysClassNet, iface, "carrier")
		if data, err := os.ReadFile(carrierPath); err == nil {
			if strings.TrimSpace(string(data)) == "1" {
				return Status{
					Type:     "ethernet",
					IP:       ipAddress(iface),
					Signal:   100,
					Strength: 3,
				}
			}
		}
	}

	// WiFi (usually wlan0)
	for _, iface := range []string{"wlan0", "wlan1"} {
		operstatePath := filepath.Join(c.sysClassNet, iface, "operstate")
		if data, err := os.ReadFile(operstatePath); err == nil {
			if strings.TrimSpace(string(data)) == "up" {
				status := Status{Type: "wifi", IP: ipAddress(iface)}
				status.SSID, status.Signal = wifiInfo(iface)
				switch {
				case status.Signal >= 70:
					status.Strength = 3
				case status.Signal >= 50:
					status.Strength = 2
				case status.Signal >= 30:
					status.Strength = 1
				}
				return status
			}
		}
	}

	return Status{Type: "none"}
}

// Unmetered reports whether a non-cellular network is available. On this
// hardware ethernet and wifi are both unmetered, so anything connected counts.
func (c *Checker) Unmetered() bool {
	return c.Current().Type != "none"
}

// ipAddress returns the IPv4 address for a given interface.
func ipAddress(iface string) string {
	out, err := exec.Command("ip", "-4", "addr", "show", iface).Output()
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "inet ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				return strings.Split(parts[1], "/")[0]
			}
		}
	}
	return ""
}

// wifiInfo returns SSID and signal strength (0-100) for a WiFi interface.
func wifiInfo(iface string) (string, int) {
	ssid := ""
	signal := 0

	if out, err := exec.Command("iwgetid", iface, "-r").Output(); err == nil {
		ssid = strings.TrimSpace(string(out))
	}

	file, err := os.Open("/proc/net/wireless")
	if err != nil {
		return ssid, signal
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, iface) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			break
		}

		// Link quality is usually out of 70; some drivers report 0-100.
		linkQuality := strings.TrimSuffix(fields[2], ".")
		if q, err := strconv.Atoi(linkQuality); err == nil {
			if q > 70 && q <= 100 {
				signal = q
			} else if q >= 0 && q <= 70 {
				signal = (q * 100) / 70
			}
		}

		// Fall back to signal level in dBm (-100 dBm = 0%, -50 dBm = 100%)
		if signal == 0 {
			sigLevel := strings.TrimSuffix(fields[3], ".")
			if dbm, err := strconv.Atoi(sigLevel); err == nil && dbm < 0 {
				signal = 2 * (dbm + 100)
				if signal < 0 {
					signal = 0
				}
				if signal > 100 {
					signal = 100
				}
			}
		}
		break
	}

	return ssid, signal
}
