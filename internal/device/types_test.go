package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple hostname", "worker-01", false},
		{"namespaced id", "crewai:agent-01", false},
		{"uuid style", "550e8400-e29b-41d4-a716-446655440000", false},
		{"interior space", "build agent 7", false},
		{"unicode", "ernte-agent-münchen", false},
		{"single character", "a", false},
		{"max length", strings.Repeat("x", 128), false},
		{"empty", "", true},
		{"too long", strings.Repeat("x", 129), true},
		{"leading space", " agent", true},
		{"trailing space", "agent ", true},
		{"newline", "agent\n01", true},
		{"tab", "agent\t01", true},
		{"null byte", "agent\x0001", true},
		{"invalid utf8", "agent-\xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDeviceID) {
					t.Errorf("ValidateDeviceID(%q) error = %v, want ErrInvalidDeviceID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateDeviceID(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

func TestRecordIsActive(t *testing.T) {
	active := &Record{State: StateActive}
	revoked := &Record{State: StateRevoked}

	if !active.IsActive() {
		t.Error("active record reported inactive")
	}
	if revoked.IsActive() {
		t.Error("revoked record reported active")
	}
}
