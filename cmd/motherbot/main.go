package main

import (
	"go.uber.org/zap"

	"motherbot/internal/app"
)

func main() {
	logger := zap.Must(zap.NewProduction())

	application, err := app.New()
	if err != nil {
		logger.Fatal("Failed to create application", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		logger.Fatal("Application error", zap.Error(err))
	}
}
