// Package store persists scenes, their ordered shots, and per-shot generation
// attempts in SQLite and exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, status
// transitions that mirror the public scene and shot enums, read-only status
// snapshots, and recovery of scenes left in flight by a crashed daemon. Shot
// ordering is fixed when a scene is created; no API reorders or inserts shots
// afterwards.
//
// The schema version lives in SQLite's user_version pragma. A database from a
// different version is refused rather than migrated.
package store
