package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PARISHDESK_TEST_MODE", "1")
		// Keep tests off any developer redis instance.
		if os.Getenv("CAPABILITY_CACHE_BACKEND") == "" {
			_ = os.Setenv("CAPABILITY_CACHE_BACKEND", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
