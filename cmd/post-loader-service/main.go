package main

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/timkado/api/post-loader-service/internal/bootstrap"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

func main() {
	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "app-main")

	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		os.Exit(1)
	}
	cleanup()
	fmt.Println("Application exited gracefully.")
}
