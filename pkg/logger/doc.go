// Package logger builds the structured loggers used across schoolfeed.
//
// Every component in the module accepts a *slog.Logger through a WithLogger
// option and falls back to slog.Default(). This package produces those
// loggers: New applies functional options (format, level, output, static
// attributes, context extractors) and wraps the handler with a decorator that
// pulls request or session scoped values out of context.Context on every
// record.
//
// Attribute helpers (Error, UserID, NotificationID, Source, Room, Event,
// Attempt, Component, ...) keep key names consistent between the engine, the
// transport adapters and the HTTP surface:
//
//	log := logger.New(logger.WithEnvironment("production", "schoolfeed"))
//	log.WarnContext(ctx, "realtime channel not connected, update dropped",
//	    logger.Component("realtime"),
//	    logger.Event("send-update"),
//	)
//
// Helpers that take an error or an identifier return an empty slog.Attr when
// the value is nil, so call sites never need a nil check.
package logger
