//go:build !blockmemdebug

package alloc

// debugBuild enables per-size statistics by default. Build with
// -tags blockmemdebug to turn it on.
const debugBuild = false
