// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import "errors"

var (
	ErrAlreadyStarted    = errors.New("supervisor: already started")
	ErrProjectUnknown    = errors.New("supervisor: unknown project")
	ErrInvalidState      = errors.New("supervisor: operation not valid in current handle state")
	ErrGlobalStateDirFailed = errors.New("supervisor: could not create global state directory")
)
