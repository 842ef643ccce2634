// Package ops implements the operations behind every Tabula surface (CLI, MCP, web):
// building review sessions from the photo index and managing the staged trash.
package ops

import (
	"time"
)

// MaxExportItems bounds how many trash entries a single export writes.
const MaxExportItems = 100000

// nowMillis returns the current time in milliseconds since the epoch.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
