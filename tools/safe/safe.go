package safe

import (
	"TGModule/logger"

	"go.uber.org/zap"
)

// Go starts a goroutine that recovers from panics so a single
// misbehaving background task cannot take the whole bot down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("name", name), zap.Any("panic", r))
			}
		}()
		f()
	}()
}
