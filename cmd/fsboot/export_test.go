package main

import (
	"io"
)

var Run = run

func MockOsArgs(new []string) (restore func()) {
	saved := osArgs
	osArgs = append([]string{"argv0"}, new...)
	return func() {
		osArgs = saved
	}
}

func MockOsStdout(new io.Writer) (restore func()) {
	saved := osStdout
	osStdout = new
	return func() {
		osStdout = saved
	}
}
