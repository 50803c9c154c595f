package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseRunID(t *testing.T) {
	valid := NewRunID().String()

	tests := []struct {
		input    string
		hasError bool
	}{
		{valid, false},
		{"", true},
		{"   ", true},
		{"not-a-uuid", true},
	}

	for _, tt := range tests {
		_, err := ParseRunID(tt.input)
		if tt.hasError && err == nil {
			t.Errorf("ParseRunID(%q) expected error", tt.input)
		}
		if !tt.hasError && err != nil {
			t.Errorf("ParseRunID(%q) unexpected error: %v", tt.input, err)
		}
	}
}

func TestConfigurationErrorClassification(t *testing.T) {
	err := NewTemplateNotFoundError("bkgLeff1.00")
	if !IsConfigurationError(err) {
		t.Error("missing template must be a configuration error")
	}
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Error("expected ErrTemplateNotFound in chain")
	}
	if IsConfigurationError(ErrFitFailed) {
		t.Error("fit failure is not a configuration error")
	}
	if !IsNotFoundError(ErrResultNotFound) {
		t.Error("expected ErrResultNotFound to be a not-found error")
	}
}
