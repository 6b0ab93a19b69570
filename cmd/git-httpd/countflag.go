package main

import (
	"fmt"
	"strconv"
)

// countFlag is both a bool and an int flag, the way -v/-v/-v or -q/-q/-q
// accumulate verbosity/quietness on the command line.
//
// Adapted from the teacher's misc.go:countFlag (itself inspired by
// cmd/dist.count in go.git), generalized to satisfy pflag.Value instead of
// flag.Value so it plugs into cobra's flag set directly.
type countFlag int

func (c *countFlag) String() string { return fmt.Sprint(int(*c)) }

func (c *countFlag) Set(s string) error {
	switch s {
	case "true":
		*c++
	case "false":
		*c = 0
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid count %q", s)
		}
		*c = countFlag(n)
	}
	return nil
}

func (c *countFlag) Type() string { return "count" }

// IsBoolFlag lets pflag/cobra treat repeated bare "-v -v -v" as increments
// rather than demanding "-v=true" each time.
func (c *countFlag) IsBoolFlag() bool { return true }
