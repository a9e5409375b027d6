// Package guard forces test mode for packages that import it, keeping
// runtime side effects out of unit tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ARMATURE_TEST_MODE") == "" {
			_ = os.Setenv("ARMATURE_TEST_MODE", "1")
		}
	})
}
