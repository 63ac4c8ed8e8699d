// Package lock keeps one wpphubd per data directory. The lock file doubles
// as a discovery record: it names the owning PID and, once the daemon is
// serving, its HTTP address and control socket.
package lock

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Owner is the record kept in the lock file.
type Owner struct {
	PID     int
	Started time.Time
	HTTP    string
	Control string
}

// LockHeldError is returned when another daemon already owns the data directory.
type LockHeldError struct {
	Owner Owner
	Path  string
}

func (e *LockHeldError) Error() string {
	msg := fmt.Sprintf("data directory locked by PID %d (%s)", e.Owner.PID, e.Path)
	if e.Owner.HTTP != "" {
		msg += ", serving on " + e.Owner.HTTP
	}
	return msg
}

// Lock is a held data directory lock.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes an exclusive flock on <dataDir>/LOCK. It fails with
// *LockHeldError when another process holds it.
func Acquire(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		owner, _ := readOwner(path)
		return nil, &LockHeldError{Owner: owner, Path: path}
	}

	l := &Lock{
		file:  f,
		path:  path,
		owner: Owner{PID: os.Getpid(), Started: time.Now().UTC().Truncate(time.Second)},
	}
	if err := l.write(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// Publish records where the daemon can be reached.
func (l *Lock) Publish(httpAddr, controlSocket string) error {
	l.owner.HTTP = httpAddr
	l.owner.Control = controlSocket
	return l.write()
}

func (l *Lock) write() error {
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return err
	}
	o := l.owner
	_, err := fmt.Fprintf(l.file, "pid=%d\nstarted=%s\nhttp=%s\ncontrol=%s\n",
		o.PID, o.Started.Format(time.RFC3339), o.HTTP, o.Control)
	return err
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the file. Safe on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// ErrNotRunning means no daemon holds the data directory.
var ErrNotRunning = errors.New("no daemon running")

// ReadOwner returns the record of the daemon holding dataDir.
func ReadOwner(dataDir string) (Owner, error) {
	path := filepath.Join(dataDir, fileName)
	owner, err := readOwner(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && owner.PID == 0) {
		return Owner{}, fmt.Errorf("%w in %s", ErrNotRunning, dataDir)
	}
	return owner, err
}

func readOwner(path string) (Owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, err
	}
	defer func() { _ = f.Close() }()

	var o Owner
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "started":
			o.Started, _ = time.Parse(time.RFC3339, value)
		case "http":
			o.HTTP = value
		case "control":
			o.Control = value
		}
	}
	return o, sc.Err()
}
