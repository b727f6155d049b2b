package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

// ─── List ──────────────────────────────────────────────────────────

func TestDeviceList_RendersTable(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"devices":[
		{"org_id":"org-1a2b3c4d","device_id":"sensor-01","state":"active",
		 "first_registered_at":"2026-02-10T09:30:00Z","last_validated_at":"2026-02-11T08:00:00Z"},
		{"org_id":"org-1a2b3c4d","device_id":"robot-arm-7","state":"revoked",
		 "first_registered_at":"2026-01-05T12:00:00Z","revoked_at":"2026-02-01T10:00:00Z"}],
		"count":2}`)

	stdout, _, err := execute(t, "device", "list", "--server", fs.URL, "--org-key", "org_secret")
	if err != nil {
		t.Fatalf("device list: %v", err)
	}

	if got := fs.headers.Get("x-org-key"); got != "org_secret" {
		t.Errorf("x-org-key = %q", got)
	}
	for _, want := range []string{
		"DEVICE ID", "sensor-01", "robot-arm-7", "revoked",
		"2026-02-11T08:00:00Z",
		// A never-validated device renders "never", not a zero time.
		"never",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("table missing %q:\n%s", want, stdout)
		}
	}
}

func TestDeviceList_StateFilterForwarded(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"devices":[],"count":0}`)

	_, _, err := execute(t, "device", "list",
		"--server", fs.URL, "--org-key", "org_secret", "--state", "revoked")
	if err != nil {
		t.Fatalf("device list: %v", err)
	}

	if got := fs.query.Get("state"); got != "revoked" {
		t.Errorf("state query = %q, want revoked", got)
	}
}

func TestDeviceList_Empty(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"devices":[],"count":0}`)

	stdout, _, err := execute(t, "device", "list", "--server", fs.URL, "--org-key", "org_secret")
	if err != nil {
		t.Fatalf("device list: %v", err)
	}
	if !strings.Contains(stdout, "No devices.") {
		t.Errorf("output = %q", stdout)
	}
}

func TestDeviceList_OrgKeyRequired(t *testing.T) {
	clearCredentialEnv(t)

	_, _, err := execute(t, "device", "list")
	if err == nil {
		t.Fatal("expected error without an organisation key")
	}
	if !strings.Contains(err.Error(), "organisation key is required") {
		t.Errorf("error = %q", err)
	}
}

func TestDeviceList_OrgKeyFromEnv(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"devices":[],"count":0}`)
	t.Setenv(envOrgKey, "org_from_env")

	_, _, err := execute(t, "device", "list", "--server", fs.URL)
	if err != nil {
		t.Fatalf("device list: %v", err)
	}
	if got := fs.headers.Get("x-org-key"); got != "org_from_env" {
		t.Errorf("x-org-key = %q, want org_from_env", got)
	}
}

// ─── Revoke ────────────────────────────────────────────────────────

func TestDeviceRevoke(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"device":
		{"org_id":"org-1a2b3c4d","device_id":"sensor-01","state":"revoked",
		 "first_registered_at":"2026-02-10T09:30:00Z","revoked_at":"2026-02-12T09:00:00Z"}}`)

	stdout, _, err := execute(t, "device", "revoke", "sensor-01",
		"--server", fs.URL, "--org-key", "org_secret")
	if err != nil {
		t.Fatalf("device revoke: %v", err)
	}

	if fs.method != http.MethodDelete || fs.path != "/api/v1/devices/sensor-01" {
		t.Errorf("request = %s %s, want DELETE /api/v1/devices/sensor-01", fs.method, fs.path)
	}
	if !strings.Contains(stdout, "sensor-01 revoked") {
		t.Errorf("output = %q", stdout)
	}
}

func TestDeviceRevoke_UnknownDevice(t *testing.T) {
	fs := newFakeServer(t, http.StatusNotFound,
		`{"status":404,"code":"device_not_found","message":"device is not registered","request_id":"req-4"}`)

	_, _, err := execute(t, "device", "revoke", "ghost",
		"--server", fs.URL, "--org-key", "org_secret")
	if err == nil {
		t.Fatal("expected error for unknown device")
	}
	if !strings.Contains(err.Error(), "device_not_found") {
		t.Errorf("error = %q", err)
	}
}

// ─── Check ─────────────────────────────────────────────────────────

func TestDeviceCheck_Allowed(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"allowed":true,"code":"ok","request_id":"req-1"}`)

	stdout, _, err := execute(t, "device", "check", "sensor-01",
		"--server", fs.URL, "--org-key", "org_secret")
	if err != nil {
		t.Fatalf("device check: %v", err)
	}

	if fs.method != http.MethodPost || fs.path != "/api/v1/devices/validate" {
		t.Errorf("request = %s %s, want POST /api/v1/devices/validate", fs.method, fs.path)
	}

	var body map[string]string
	if err := json.Unmarshal(fs.body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if body["deviceId"] != "sensor-01" {
		t.Errorf("body = %v, want deviceId sensor-01", body)
	}

	if !strings.Contains(stdout, "sensor-01: allowed") {
		t.Errorf("output = %q", stdout)
	}
}

func TestDeviceCheck_Denied(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, `{"allowed":false,"code":"revoked","request_id":"req-2"}`)

	stdout, _, err := execute(t, "device", "check", "robot-arm-7",
		"--server", fs.URL, "--org-key", "org_secret")
	if err != nil {
		t.Fatalf("device check: %v", err)
	}
	if !strings.Contains(stdout, "robot-arm-7: denied (revoked)") {
		t.Errorf("output = %q", stdout)
	}
}
