//go:build !slotdebug

package slot

// DebugChecks is true in builds tagged slotdebug.
const DebugChecks = false
