//go:build blockmemdebug

package alloc

const debugBuild = true
