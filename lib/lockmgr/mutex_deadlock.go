//go:build deadlock

package lockmgr

import "github.com/sasha-s/go-deadlock"

type mutex = deadlock.Mutex
