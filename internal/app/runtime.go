package app

import "os"

// TestModeEnv is set to "1" by the testing helpers.
const TestModeEnv = "PARISHDESK_TEST_MODE"

// InTestMode reports whether binaries should exit before touching Postgres
// or Redis.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
