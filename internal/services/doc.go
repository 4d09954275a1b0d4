// Package services provides shared plumbing for external tool adapters:
// sentinel error markers used to classify stage failures as transient or
// permanent, structured error wrapping with stage/operation context, and
// context annotation helpers for correlated logging.
package services
