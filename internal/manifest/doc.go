// Package manifest reads YAML scene manifests into store scene definitions.
//
// A manifest names a scene, its mood or music, and an ordered list of shots.
// Relative paths resolve against the manifest's directory. Shot 1 must carry
// a source image, which is checked by content signature before the scene is
// created.
package manifest
