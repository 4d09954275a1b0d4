// Package songs persists the karaoke pipeline's unit of work: one row per
// YouTube video tracking its status, per-stage attempt counts, and the
// artifact paths each completed stage produced. The store is the single
// source of truth for what has been done; all stage transitions go through
// it atomically.
package songs
