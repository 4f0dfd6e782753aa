// Package assetstore archives finished scene artifacts.
//
// Three backends are available: local (verified copy into a directory), s3,
// and gcs. Keys are built from the configured prefix, the scene ID and slug,
// and the artifact file name.
package assetstore
