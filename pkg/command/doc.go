// Package command runs external programs with captured output and an
// optional timeout.
package command
