package pressure

import (
	"log/slog"
	"syscall"
)

// detectLimit derives the memory ceiling from the machine: half of
// total system memory, or DefaultLimitBytes when the figure is
// unavailable. A rough safety valve, not an allocation cap.
func detectLimit() int64 {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		slog.Debug("Failed to read system memory, using default limit", "error", err)
		return DefaultLimitBytes
	}

	total := int64(info.Totalram) * int64(info.Unit)
	if total <= 0 {
		return DefaultLimitBytes
	}
	return total / 2
}
