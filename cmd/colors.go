package cmd

import (
	"strings"

	"github.com/fatih/color"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch scan.Status(strings.ToLower(status)) {
	case scan.StatusCompleted:
		return colorSuccess(status)
	case scan.StatusPartialFailure:
		return colorWarn(status)
	case scan.StatusFailed:
		return colorError(status)
	default:
		return status
	}
}

// statusMarker is the one-glyph form of formatStatusWithColor for summary rows.
func statusMarker(status scan.Status) string {
	switch status {
	case scan.StatusCompleted:
		return colorSuccess("✓")
	case scan.StatusPartialFailure:
		return colorWarn("!")
	default:
		return colorError("✗")
	}
}
