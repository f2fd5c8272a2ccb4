package errors_test

import (
	"strings"
	"testing"

	"github.com/marlonsc/mcbgo/internal/gitignore"
	"github.com/marlonsc/mcbgo/internal/preflight"
)

// TestErrorWrapping_Preflight verifies preflight errors are wrapped with context.
func TestErrorWrapping_Preflight(t *testing.T) {
	// MarkPassed should wrap os.MkdirAll errors
	err := preflight.MarkPassed("/nonexistent/deeply/nested/path/that/cannot/exist")
	if err == nil {
		t.Skip("Expected error creating marker in nonexistent path")
	}

	// Error should contain context about what operation failed
	errMsg := err.Error()
	if !strings.Contains(errMsg, "create") && !strings.Contains(errMsg, "marker") && !strings.Contains(errMsg, "directory") {
		t.Errorf("Error should contain context about creating marker directory, got: %s", errMsg)
	}
}

// TestErrorWrapping_Gitignore verifies gitignore file-read errors are
// wrapped with context.
func TestErrorWrapping_Gitignore(t *testing.T) {
	m := gitignore.New()
	err := m.AddFromFile("/nonexistent/source/.gitignore", "")
	if err == nil {
		t.Fatal("expected error reading nonexistent gitignore file")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "gitignore") {
		t.Errorf("Error should mention the gitignore file being opened, got: %s", errMsg)
	}
}
