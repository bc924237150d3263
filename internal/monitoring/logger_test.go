package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	// Test setting a custom logger
	called := false
	customLogger := func(format string, v ...interface{}) {
		called = true
	}

	SetLogger(customLogger)
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Test setting nil logger (should create no-op)
	SetLogger(nil)
	// This should not panic
	Logf("test message")

	// Verify the logger is a no-op by checking it doesn't panic
	// and doesn't call anything
	noOpCalled := false
	testLogger := func(format string, v ...interface{}) {
		noOpCalled = true
	}
	SetLogger(testLogger)
	// First verify our test logger works
	Logf("test")
	if !noOpCalled {
		t.Error("Test logger should have been called")
	}

	// Now set to nil and verify it doesn't call our logger
	noOpCalled = false
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	// Test that Logf is not nil by default
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	// Test that we can call it without panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestTagged_Prefix(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Tagged("arbiter", "SmartIdentify").Printf("match %d", 101)
	if got != "[arbiter][SmartIdentify] match 101" {
		t.Errorf("unexpected line %q", got)
	}

	Tagged("manager").With("SetMode").Printf("mode=%s", "None")
	if got != "[manager][SetMode] mode=None" {
		t.Errorf("unexpected line %q", got)
	}

	Tagged().Printf("bare")
	if got != "bare" {
		t.Errorf("unexpected line %q", got)
	}
}

func TestDebugf_Gated(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	defer SetDebug(false)

	calls := 0
	SetLogger(func(string, ...interface{}) { calls++ })

	l := Tagged("capture")
	SetDebug(false)
	l.Debugf("hidden")
	if calls != 0 {
		t.Fatalf("debug line emitted while disabled")
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled should report true")
	}
	l.Debugf("shown")
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
