// Package test holds helpers shared by the tests of several packages.
package test

import (
	"sync"
	"testing"
)

// locks maps the address of a mocked variable to the mutex guarding it.
var locks sync.Map

// MockGlobal sets *target to mock until the test ends. Tests mocking the
// same variable run one after the other, so mocking one variable twice in a
// single test deadlocks.
func MockGlobal[T any](t testing.TB, target *T, mock T) {
	t.Helper()

	v, _ := locks.LoadOrStore(target, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	saved := *target
	*target = mock
	t.Cleanup(func() {
		*target = saved
		mu.Unlock()
	})
}
