// Package telemetry reports internal errors to Sentry.
//
// A Reporter built without a DSN is disabled and every method is a no-op, so
// callers never need to check whether reporting is configured.
package telemetry
