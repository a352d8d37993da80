package burn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"chevelle/internal/services"
)

// DeviceLock serializes burner access across processes with an advisory
// file lock keyed by device path.
type DeviceLock struct {
	device string
	lock   *flock.Flock
}

// NewDeviceLock builds a lock for the given device. The lock file lives in
// the system temp directory so every chevelle process agrees on it.
func NewDeviceLock(device string) *DeviceLock {
	name := strings.NewReplacer("/", "-", "\\", "-").Replace(strings.Trim(device, "/"))
	path := filepath.Join(os.TempDir(), fmt.Sprintf("chevelle-%s.lock", name))
	return &DeviceLock{device: device, lock: flock.New(path)}
}

// Acquire blocks until the device lock is held, the timeout passes, or the
// context is cancelled. A timeout maps to the session's device timeout
// error so retry policy can treat it as transient.
func (d *DeviceLock) Acquire(ctx context.Context, timeout time.Duration) error {
	const retryDelay = 250 * time.Millisecond

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ok, err := d.lock.TryLockContext(lockCtx, retryDelay)
	if err != nil {
		if lockCtx.Err() != nil && ctx.Err() == nil {
			return services.Wrap(services.ErrTimeout, "burn", "lock",
				fmt.Sprintf("device %s busy after %s", d.device, timeout), nil)
		}
		return fmt.Errorf("lock device %s: %w", d.device, err)
	}
	if !ok {
		return services.Wrap(services.ErrTimeout, "burn", "lock",
			fmt.Sprintf("device %s busy after %s", d.device, timeout), nil)
	}
	return nil
}

// Release gives the device back. Safe to call when not held.
func (d *DeviceLock) Release() error {
	return d.lock.Unlock()
}

// Path returns the lock file location.
func (d *DeviceLock) Path() string {
	return d.lock.Path()
}
