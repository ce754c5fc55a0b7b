//go:build !unix

package main

// setUmask is a no-op where the platform has no process umask.
func setUmask() {}
