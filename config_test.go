package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/waypoint"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	t.Setenv("OSRM_HOST", "osrm.internal:5000")
	path := writeConfig(t, `
port = ":9090"

[nav]
nominatim_url = "https://nominatim.openstreetmap.org"
overpass_url = "https://overpass-api.de/api/interpreter"
osrm_url = "http://${OSRM_HOST}"
user_agent = "${USER_AGENT:-tripplanner-test}"
timeout = "5s"

[session]
mode = "both"
debounce = "250ms"
proximity_threshold = 150.0

[storage]
path = "routes.db"
max_history = 10
`)

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.Port != ":9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Nav.OSRMURL != "http://osrm.internal:5000" {
		t.Errorf("OSRMURL = %q, want expanded host", cfg.Nav.OSRMURL)
	}
	if cfg.Nav.UserAgent != "tripplanner-test" {
		t.Errorf("UserAgent = %q, want default", cfg.Nav.UserAgent)
	}
	if cfg.Nav.Router != string(nav.RouterOSRM) {
		t.Errorf("Router = %q, want osrm default", cfg.Nav.Router)
	}
	if cfg.Nav.Timeout.Duration != 5*time.Second || cfg.Session.Debounce.Duration != 250*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Nav.Timeout, cfg.Session.Debounce)
	}
	if cfg.Session.Mode != string(waypoint.ModeBothEndpoints) || cfg.Session.ProximityThreshold != 150 {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if len(cfg.Session.Denylist) != 1 || cfg.Session.Denylist[0] != "butcher" {
		t.Errorf("Denylist = %v, want default", cfg.Session.Denylist)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig(writeConfig(t, `
[nav]
nominatim_url = "https://nominatim.openstreetmap.org"
overpass_url = "https://overpass-api.de/api/interpreter"
osrm_url = "https://router.project-osrm.org"
`))
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.Port != ":8080" || cfg.Storage.Path != "tripplanner.db" || cfg.Session.Mode != string(waypoint.DefaultMode) {
		t.Errorf("defaults = %q %q %q", cfg.Port, cfg.Storage.Path, cfg.Session.Mode)
	}
}

func TestReadConfig_Invalid(t *testing.T) {
	const urls = `
nominatim_url = "https://nominatim.openstreetmap.org"
overpass_url = "https://overpass-api.de/api/interpreter"
`
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"missing nominatim", "[nav]\nosrm_url = \"http://osrm\"\noverpass_url = \"http://o\"\n", "nav.nominatim_url is required"},
		{"missing overpass", "[nav]\nnominatim_url = \"http://n\"\nosrm_url = \"http://osrm\"\n", "nav.overpass_url is required"},
		{"missing osrm", "[nav]" + urls, "nav.osrm_url is required"},
		{"unknown router", "[nav]" + urls + "router = \"valhalla\"\n", "nav.router must be"},
		{"google without key", "[nav]" + urls + "router = \"google\"\n", "nav.google_api_key is required"},
		{"bad mode", "[nav]" + urls + "osrm_url = \"http://osrm\"\n[session]\nmode = \"origin-first\"\n", "session.mode must be"},
		{"bad duration", "[nav]" + urls + "osrm_url = \"http://osrm\"\n[session]\ndebounce = \"soon\"\n", "error decoding config file"},
		{"bad level", "[nav]" + urls + "osrm_url = \"http://osrm\"\n[log]\nlevel = \"loud\"\n", "log.level"},
		{"not toml", "port = ", "error decoding config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readConfig(writeConfig(t, tt.text))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadConfig_MissingFile(t *testing.T) {
	if _, err := readConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "debug", Development: true}); err != nil {
		t.Errorf("NewLogger: %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("invalid level accepted")
	}
}
