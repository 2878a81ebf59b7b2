//go:build !unix && !windows

package ledger

import "os"

// Platforms without advisory file locks run unlocked.
func tryLock(*os.File, lockMode) error { return nil }

func unlock(*os.File) error { return nil }
