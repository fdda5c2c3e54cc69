/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import "errors"

// ErrUserNotFound indicates an expression references a user id that does not
// resolve. Fatal to the current run: continuing would silently produce an
// incomplete result.
var ErrUserNotFound = errors.New("referenced user not found")
