// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriority_Weight(t *testing.T) {
	cases := map[Priority]float64{
		PriorityCritical: 2.0,
		PriorityHigh:     1.5,
		PriorityNormal:   1.0,
		PriorityLow:      0.5,
		Priority("bogus"): 1.0,
	}
	for priority, want := range cases {
		assert.Equal(t, want, priority.Weight(), "priority %q", priority)
	}
}

func TestPriority_IsValid(t *testing.T) {
	assert.True(t, PriorityCritical.IsValid())
	assert.False(t, Priority("urgent").IsValid())
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusActive.IsValid())
	assert.False(t, Status("zombie").IsValid())
}
