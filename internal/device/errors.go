// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "errors"

var (
	// ErrDomainsUnavailable is returned when the powercap RAPL tree does not
	// exist or cannot be listed.
	ErrDomainsUnavailable = errors.New("RAPL energy domains unavailable")

	// ErrDomainNotFound is returned when a selector matches no domain or a
	// domain lacks one of its files.
	ErrDomainNotFound = errors.New("RAPL energy domain not found")
)
