//go:build js && wasm

package lockfile

import "os"

// WASM builds are single-process; locking is a no-op there.
func flockExclusiveNonBlocking(f *os.File) error { return nil }

func flockUnlock(f *os.File) error { return nil }
