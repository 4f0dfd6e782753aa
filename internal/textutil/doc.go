// Package textutil provides filename and slug helpers used when naming scene
// outputs and archived assets.
package textutil
