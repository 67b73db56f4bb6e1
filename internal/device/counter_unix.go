// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package device

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// readCounter reads f from offset zero with one pread. Drivers answering
// EAGAIN fail the read instead of parking the sampler in the runtime poller.
func readCounter(f *os.File, buf []byte) (int, error) {
	fd := int(f.Fd())
	for {
		n, err := unix.Pread(fd, buf, 0)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return 0, err
		}
		return n, nil
	}
}
