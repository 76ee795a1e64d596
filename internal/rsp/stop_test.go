// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rsp_test

import (
	"testing"

	"github.com/aibor/kernrun/internal/rsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStopReply(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		expected    rsp.StopReply
		expectedErr error
	}{
		{
			name:     "signal",
			reply:    "S05",
			expected: rsp.StopReply{Kind: rsp.StopSignal, Signal: rsp.SignalTrap},
		},
		{
			name:  "signal with info",
			reply: "T05swbreak:;thread:p01.01;",
			expected: rsp.StopReply{
				Kind:   rsp.StopSignal,
				Signal: rsp.SignalTrap,
				Info: map[string]string{
					"swbreak": "",
					"thread":  "p01.01",
				},
			},
		},
		{
			name:     "exited",
			reply:    "W2a",
			expected: rsp.StopReply{Kind: rsp.StopExited, ExitCode: 42},
		},
		{
			name:     "exited with process",
			reply:    "W00;process:1",
			expected: rsp.StopReply{Kind: rsp.StopExited},
		},
		{
			name:     "terminated",
			reply:    "X09",
			expected: rsp.StopReply{Kind: rsp.StopTerminated, Signal: 9},
		},
		{
			name:        "too short",
			reply:       "S",
			expectedErr: rsp.ErrInvalidReply,
		},
		{
			name:        "unknown",
			reply:       "OK0",
			expectedErr: rsp.ErrInvalidReply,
		},
		{
			name:        "invalid signal",
			reply:       "Szz",
			expectedErr: rsp.ErrInvalidReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := rsp.ParseStopReply(tt.reply)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestStopReply_Halted(t *testing.T) {
	assert.True(t, rsp.StopReply{Kind: rsp.StopSignal}.Halted())
	assert.False(t, rsp.StopReply{Kind: rsp.StopExited}.Halted())
	assert.False(t, rsp.StopReply{Kind: rsp.StopTerminated}.Halted())
}
