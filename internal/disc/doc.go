// Package disc talks to the optical drive: tray status ioctls, ejecting,
// drive discovery, blank-media checks, and udev-based insertion monitoring.
// Everything that shells out goes through an injectable executor so tests
// never need hardware.
package disc
