// Package wifi joins the vehicle to an existing wireless network using
// NetworkManager. The rover is a client only; it never hosts an access
// point. All operations shell out to nmcli and require root privileges.
package wifi

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const connName = "RoverLink"

// Connect associates wlan0 with the given SSID. Any previous RoverLink
// connection profile is removed first so repeated calls converge on a
// clean state.
func Connect(ssid, password string) error {
	// Ensure wlan0 is managed so NetworkManager can use it.
	_ = exec.Command("nmcli", "dev", "set", "wlan0", "managed", "yes").Run()
	// Give NetworkManager a moment to recognize the device state change.
	time.Sleep(1 * time.Second)

	// Delete existing connection to avoid duplicates
	_ = exec.Command("nmcli", "con", "delete", connName).Run()

	// Use 'device wifi connect' which is more robust than 'con add' + 'con up'
	// as it auto-detects security settings (WPA2/WPA3) and handles association.
	args := []string{
		"device", "wifi", "connect", ssid,
		"ifname", "wlan0",
		"name", connName,
	}
	if password != "" {
		args = append(args, "password", password)
	}

	cmd := exec.Command("nmcli", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to connect to %q: %v, output: %s", ssid, err, string(out))
	}

	return nil
}

type Status struct {
	SSID  string `json:"ssid"`
	State string `json:"state"` // activated, activating, or empty when down
	IP    string `json:"ip"`
}

// GetStatus reports the active wireless connection on wlan0, if any.
func GetStatus() (Status, error) {
	status := Status{}

	// nmcli -t -f NAME,TYPE,DEVICE,STATE con show --active
	cmd := exec.Command("nmcli", "-t", "-f", "NAME,TYPE,DEVICE,STATE", "con", "show", "--active")
	out, err := cmd.Output()
	if err != nil {
		return status, fmt.Errorf("nmcli con show: %w", err)
	}

	name, state := parseActiveWireless(string(out), "wlan0")
	if name == "" {
		return status, nil
	}
	status.State = state

	ssid := lookupConnectionSSID(name)
	if ssid == "" {
		ssid = name
	}
	status.SSID = ssid

	if status.State == "activated" {
		cmd = exec.Command("nmcli", "-g", "ip4.address", "dev", "show", "wlan0")
		if out, err := cmd.Output(); err == nil {
			status.IP = strings.TrimSpace(string(out))
		}
	}

	return status, nil
}

// parseActiveWireless scans terse nmcli active-connection output for the
// first 802-11-wireless entry on the given device. It returns the
// connection name and state, or empty strings when none is active.
func parseActiveWireless(out, device string) (name, state string) {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, ":")
		if len(parts) < 4 {
			continue
		}
		if parts[2] != device || parts[1] != "802-11-wireless" {
			continue
		}
		return parts[0], parts[3]
	}
	return "", ""
}

func lookupConnectionSSID(connName string) string {
	if strings.TrimSpace(connName) == "" {
		return ""
	}
	cmd := exec.Command("nmcli", "-g", "802-11-wireless.ssid", "connection", "show", connName)
	if out, err := cmd.Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	return ""
}
