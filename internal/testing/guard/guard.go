// Package guard switches the process into test mode when imported, so
// package tests never start servers or reach for live backends.
package guard

import "os"

func init() {
	if os.Getenv("PARISHDESK_TEST_MODE") == "" {
		_ = os.Setenv("PARISHDESK_TEST_MODE", "1")
	}
	if os.Getenv("CAPABILITY_CACHE_BACKEND") == "" {
		_ = os.Setenv("CAPABILITY_CACHE_BACKEND", "memory")
	}
}
