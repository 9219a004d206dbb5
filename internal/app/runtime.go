package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// MERIDIAN_TEST_MODE=1 keeps the binaries from touching Postgres, Redis and
// the network, so they can be exercised in CI without infrastructure.
const testModeEnv = "MERIDIAN_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether runtime side effects should be skipped. The
// environment is read once; use RefreshTestMode after changing it in tests.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag from the environment.
func RefreshTestMode() {
	detectTestMode()
}
