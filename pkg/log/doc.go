// Package log wraps zerolog with a process-global logger, child-logger
// helpers for the common field keys (component, sheet, view_id), and
// optional size-based file rotation.
package log
