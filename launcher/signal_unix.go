// Copyright (c) Microsoft. All rights reserved.

//go:build !windows

package launcher

import (
	"os"
	"syscall"
)

func interrupt(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
