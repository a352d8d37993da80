package disc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Ejector defines disc eject operations.
type Ejector interface {
	Eject(ctx context.Context, device string) error
}

type ioctlEjector struct{}

// NewEjector creates an ejector that issues the CDROMEJECT ioctl directly,
// falling back to the eject utility when the ioctl is refused.
func NewEjector() Ejector {
	return ioctlEjector{}
}

func (ioctlEjector) Eject(ctx context.Context, device string) error {
	device = strings.TrimSpace(device)
	if device != "" {
		if err := ejectIoctl(device); err == nil {
			return nil
		}
	}

	var cmd *exec.Cmd
	if device == "" {
		cmd = exec.CommandContext(ctx, "eject")
	} else {
		cmd = exec.CommandContext(ctx, "eject", device)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("eject %s: %w", device, err)
	}
	return nil
}

func ejectIoctl(device string) error {
	fd, err := unix.Open(device, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer unix.Close(fd) //nolint:errcheck

	if _, err := unix.IoctlRetInt(fd, ioctlCDROMEject); err != nil {
		return fmt.Errorf("ioctl CDROMEJECT on %s: %w", device, err)
	}
	return nil
}
