// Package gomarket holds project-wide identifiers.
package gomarket

// Version is the release version reported by the cart CLI.
const Version = "0.1.0"

// ModulePath is the Go module path of this project.
const ModulePath = "github.com/mesh-intelligence/gomarket"
