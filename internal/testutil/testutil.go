// Package testutil carries small assertion helpers shared by handler tests.
package testutil

import "testing"

// AssertStatusCode fails the test when got differs from want.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
