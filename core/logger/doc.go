// Package logger provides slog attribute helpers shared across the module.
//
// Helpers follow the empty-Attr pattern: passing a nil error or empty id
// yields an attribute slog silently drops, so call sites stay free of nil
// checks:
//
//	log.Error("callback panicked",
//		logger.RequestID(req.ID),
//		logger.Error(err),
//	)
package logger
