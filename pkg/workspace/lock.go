package workspace

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/warptools/fricon/fcapi"
)

// Lock is an exclusive advisory lock on a workspace, held by the serving process.
type Lock struct {
	f *os.File
}

// Lock takes the workspace lock without blocking.
// Only one engine process may own a workspace at a time.
//
// Errors:
//
//    - fricon-error-workspace -- another process holds the lock
//    - fricon-error-io -- the lock file cannot be opened or locked
func (ws *Workspace) Lock() (*Lock, error) {
	f, err := os.OpenFile(ws.LockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fcapi.ErrorIo("opening lock file", ws.LockPath(), err)
	}
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fcapi.ErrorWorkspace(ws.rootPath, errors.New("workspace is in use by another process"))
		}
		return nil, fcapi.ErrorIo("locking workspace", ws.LockPath(), err)
	}
	return &Lock{f: f}, nil
}

// Unlock releases the lock. The lock file itself stays in place.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	defer func() { l.f = nil }()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fcapi.ErrorIo("unlocking workspace", l.f.Name(), err)
	}
	return l.f.Close()
}
