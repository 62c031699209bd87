// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import "errors"

// Typed errors surfaced to callers on invariant violations (§7: config
// mutations surface a typed error, never a bare boolean, because the
// caller needs to distinguish AlreadyExists from WouldCycle to react
// correctly).
var (
	ErrAlreadyExists   = errors.New("config: project already registered")
	ErrPathMissing     = errors.New("config: project path does not exist")
	ErrPathDuplicate   = errors.New("config: project path already registered to another project")
	ErrUnknownProject  = errors.New("config: unknown project")
	ErrWouldCycle      = errors.New("config: dependency would create a cycle")
	ErrInvalidPriority = errors.New("config: invalid priority")
	ErrInvalidStatus   = errors.New("config: invalid status")
)
