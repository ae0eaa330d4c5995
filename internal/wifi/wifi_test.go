package wifi

import "testing"

func TestParseActiveWireless(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		device    string
		wantName  string
		wantState string
	}{
		{
			name:      "client active",
			out:       "RoverLink:802-11-wireless:wlan0:activated\nlo:loopback:lo:activated\n",
			device:    "wlan0",
			wantName:  "RoverLink",
			wantState: "activated",
		},
		{
			name:      "still associating",
			out:       "RoverLink:802-11-wireless:wlan0:activating\n",
			device:    "wlan0",
			wantName:  "RoverLink",
			wantState: "activating",
		},
		{
			name:   "wired only",
			out:    "Wired connection 1:802-3-ethernet:eth0:activated\n",
			device: "wlan0",
		},
		{
			name:   "wireless on other device",
			out:    "RoverLink:802-11-wireless:wlan1:activated\n",
			device: "wlan0",
		},
		{
			name:   "empty output",
			out:    "",
			device: "wlan0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, state := parseActiveWireless(tt.out, tt.device)
			if name != tt.wantName || state != tt.wantState {
				t.Fatalf("got (%q, %q), want (%q, %q)", name, state, tt.wantName, tt.wantState)
			}
		})
	}
}
