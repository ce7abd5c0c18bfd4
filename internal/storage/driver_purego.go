//go:build !cgo
// +build !cgo

package storage

// Pure Go driver for CGO_ENABLED=0 builds. The schema and pragmas are shared with the cgo driver.
import _ "modernc.org/sqlite"

const driverName = "sqlite"
