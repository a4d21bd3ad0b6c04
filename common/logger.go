package common

import "go.uber.org/zap"

// NewLogger returns a new development logger; Engine.New uses it when the
// caller does not supply one of their own. Every long-lived component
// (LockManager, BufferPoolManager, Engine) takes a *zap.Logger at
// construction instead of reaching for a package-level global.
func NewLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on a broken encoder config, which
		// never happens with the built-in config.
		panic(err)
	}
	return logger
}

// NopLogger returns a logger that discards everything, for tests that don't
// care about log output.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
