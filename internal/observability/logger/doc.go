// Package logger provides a singleton Zap logger with context-based scoping.
//
// Initialization (once, in main):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.App.Env,   // "dev" or "prod"
//	    Level: cfg.App.LogLevel,
//	})
//	defer logger.Sync()
//
// In controllers/services (with context):
//
//	log := logger.From(ctx)
//	log.Info("credential refreshed", logger.CredentialID(id))
//
// Without context (fallback to singleton):
//
//	logger.L().Info("service started")
package logger
