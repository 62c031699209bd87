// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import "errors"

var (
	ErrNonPositiveQuota  = errors.New("scheduler: quota dimension must be positive")
	ErrProjectNotFound   = errors.New("scheduler: project not registered")
	ErrProjectRegistered = errors.New("scheduler: project already registered")
)
