package main

import (
	"github.com/spf13/pflag"

	"github.com/osbuild/fsboot/pkg/datasizes"
)

// sizeValue is a flag taking sizes like "32 MiB".
type sizeValue struct {
	size datasizes.Size
	set  bool
}

var _ pflag.Value = &sizeValue{}

func (v *sizeValue) String() string {
	if !v.set {
		return ""
	}
	return v.size.String()
}

func (v *sizeValue) Set(s string) error {
	size, err := datasizes.Parse(s)
	if err != nil {
		return err
	}
	v.size = size
	v.set = true
	return nil
}

func (v *sizeValue) Type() string {
	return "size"
}
