// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/aibor/kernrun/internal/debug"
)

// Follow inserts the given breakpoints and continues the target until it
// terminates or the context is done. Each halt is written to report with the
// location and the instruction, then the target is continued again.
func Follow(
	ctx context.Context,
	session *debug.Session,
	breakpoints []string,
	report io.Writer,
) error {
	for _, spec := range breakpoints {
		breakpoint, err := session.SetBreakpoint(ctx, spec)
		if err != nil {
			return err //nolint:wrapcheck
		}

		fmt.Fprintf(report, "Breakpoint %s at %s\n", spec, breakpoint.Location)
	}

	for {
		err := session.Continue(ctx)
		if err != nil {
			return err //nolint:wrapcheck
		}

		stop, err := session.Wait(ctx)

		switch {
		case ctx.Err() != nil:
			return nil
		case session.State() == debug.StateTerminated:
			if err != nil {
				fmt.Fprintf(report, "Debug connection lost: %v\n", err)
			} else {
				fmt.Fprintf(report, "Target %s\n", stop)
			}

			return nil
		case err != nil:
			return err
		}

		view, err := session.View(ctx)
		if err != nil {
			return err //nolint:wrapcheck
		}

		fmt.Fprintf(report, "Target %s\n%s\n", stop, view)
	}
}
