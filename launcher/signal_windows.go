// Copyright (c) Microsoft. All rights reserved.

//go:build windows

package launcher

import "os"

// Windows cannot deliver SIGTERM to a child; kill it.
func interrupt(p *os.Process) error {
	return p.Kill()
}
