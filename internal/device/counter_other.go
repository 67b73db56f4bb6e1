// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package device

import (
	"errors"
	"io"
	"os"
)

func readCounter(f *os.File, buf []byte) (int, error) {
	n, err := f.ReadAt(buf, 0)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}
