package livepager

import (
	"context"
	"errors"
	"testing"
)

func TestLoadError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		waiting     bool
		wantMissing bool
	}{
		{"container wait timed out", context.DeadlineExceeded, true, true},
		{"navigation timed out", context.DeadlineExceeded, false, false},
		{"navigation failed", errors.New("net::ERR_FILE_NOT_FOUND"), false, false},
		{"wait canceled", context.Canceled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadError(tt.err, "#resume", tt.waiting)
			if got := errors.Is(err, ErrContainerNotFound); got != tt.wantMissing {
				t.Errorf("loadError() = %v, container missing = %v, want %v", err, got, tt.wantMissing)
			}
			if !tt.wantMissing && !errors.Is(err, tt.err) {
				t.Errorf("loadError() = %v, does not wrap %v", err, tt.err)
			}
		})
	}
}
