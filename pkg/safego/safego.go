package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// Execute runs fn on a new goroutine. A panic is recovered and logged under
// goroutineName together with the stack trace.
func Execute(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	ExecuteWithRecover(ctx, logger, goroutineName, fn, nil)
}

// ExecuteWithRecover is Execute with a hook that receives the recovered value
// after it has been logged. Loaders use it to still deliver a completion.
func ExecuteWithRecover(ctx context.Context, logger domain.Logger, goroutineName string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logCtx := ctx
			if ctx.Err() != nil {
				logCtx = context.Background()
			}
			logger.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", goroutineName),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
			if onPanic != nil {
				onPanic(r)
			}
		}()
		fn()
	}()
}
