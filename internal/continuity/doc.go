// Package continuity chains shots visually: the last frame of a completed
// shot becomes the first frame of the next one.
//
// Shot 1 is the boundary case and always starts from the externally supplied
// source image. For every later shot the previous shot's extracted frame is
// mandatory; a missing frame is an invariant violation rather than something
// to recover from.
package continuity
