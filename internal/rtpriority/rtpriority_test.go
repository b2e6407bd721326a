package rtpriority

import "testing"

// Enable isn't asserted to succeed here: it requires CAP_SYS_NICE/root,
// which CI and most developer machines lack. This only checks that
// calling it never panics; a returned error is logged, not asserted.
func TestEnableDoesNotPanic(t *testing.T) {
	err := Enable(DefaultPriority)
	if err != nil && Available() {
		t.Logf("Enable returned expected permission error: %v", err)
	}
}

func TestEnableZeroUsesDefault(t *testing.T) {
	_ = Enable(0)
}
