//go:build !debug

package debug

func log(format string, args ...interface{}) {}
