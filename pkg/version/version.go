// Package version provides version information for the dolomite-oracle
// application.
package version

// Version is the current version of the dolomite-oracle application.
const Version = "1.0.0"
