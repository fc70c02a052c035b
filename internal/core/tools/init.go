// Package tools registers the built-in transforms with the core registry.
// Import this package to ensure all transforms are registered.
package tools

// This file exists to provide a single import point.
// Each transform file uses init() to register its transforms.
