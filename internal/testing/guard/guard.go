package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PADMA_TEST_MODE") == "" {
			_ = os.Setenv("PADMA_TEST_MODE", "1")
		}
	})
}
