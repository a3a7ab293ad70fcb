package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// A published index is a link named outDir pointing at a version directory, a hidden
// sibling named .<base>.v-<uuid>. Publishing replaces the link with one rename, so a
// version never changes once readers can see it. Every version has a lock file next
// to it: builders hold it exclusively until the version is published, open indexes
// hold it shared, and Prune only removes versions whose lock it can take.

const (
	lockSuffix   = ".lock"
	leaseRetries = 50
	leaseBackoff = 20 * time.Millisecond
)

var (
	// ErrLocked is returned when another process is building into the same directory.
	ErrLocked = errors.New("index directory is locked by another build")
	// ErrBusy is returned when the published version stays locked while opening it.
	ErrBusy = errors.New("index version is busy")
)

// Lock takes the cross-process build lock for outDir, stored at outDir + ".lock".
// It fails fast with ErrLocked instead of waiting.
func Lock(outDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(outDir), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create parent of %s: %w", outDir, err)
	}
	fl := flock.New(outDir + lockSuffix)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	return fl, nil
}

func versionPrefix(outDir string) string {
	return "." + filepath.Base(outDir) + ".v-"
}

// Version is an unpublished index directory owned by one builder.
type Version struct {
	Dir  string
	lock *flock.Flock
}

// NewVersion creates an empty version directory next to outDir and locks it, so Prune
// leaves it alone while it is being written.
func NewVersion(outDir string) (*Version, error) {
	parent := filepath.Dir(outDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create parent of %s: %w", outDir, err)
	}
	dir := filepath.Join(parent, versionPrefix(outDir)+uuid.NewString())
	fl := flock.New(dir + lockSuffix)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, fl.Path())
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		_ = os.Remove(fl.Path())
		_ = fl.Unlock()
		return nil, fmt.Errorf("cannot create version dir: %w", err)
	}
	return &Version{Dir: dir, lock: fl}, nil
}

// Discard removes an unpublished version.
func (v *Version) Discard() error {
	err := os.RemoveAll(v.Dir)
	_ = os.Remove(v.lock.Path())
	_ = v.lock.Unlock()
	return err
}

// Publish points outDir at v with one rename. A plain directory left at outDir by an
// older layout is first moved aside as a version of its own. On success v is unlocked
// and belongs to the readers.
func Publish(v *Version, outDir string) error {
	parent := filepath.Dir(outDir)
	fi, err := os.Lstat(outDir)
	switch {
	case err == nil && fi.IsDir():
		legacy := filepath.Join(parent, versionPrefix(outDir)+uuid.NewString())
		if err := os.Rename(outDir, legacy); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	case err == nil && fi.Mode()&os.ModeSymlink == 0:
		return fmt.Errorf("publish index: %s is not a directory or link", outDir)
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("publish index: %w", err)
	}

	link := filepath.Join(parent, "."+filepath.Base(outDir)+".link-"+uuid.NewString())
	if err := os.Symlink(filepath.Base(v.Dir), link); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	if err := os.Rename(link, outDir); err != nil {
		_ = os.Remove(link)
		return fmt.Errorf("publish index: %w", err)
	}
	syncDir(parent)
	_ = v.lock.Unlock()
	return nil
}

// Prune removes versions of outDir that are neither published nor locked by a builder
// or an open index, and returns the removed directories.
func Prune(outDir string) ([]string, error) {
	parent := filepath.Dir(outDir)
	current := currentVersion(outDir)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, err
	}
	prefix := versionPrefix(outDir)
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || name == current {
			continue
		}
		if strings.HasSuffix(name, lockSuffix) {
			// A lock file whose version is gone is left over from a crash.
			if _, err := os.Stat(filepath.Join(parent, strings.TrimSuffix(name, lockSuffix))); os.IsNotExist(err) {
				removeLocked(filepath.Join(parent, name), func() bool { return true })
			}
			continue
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(parent, name)
		remove := func() bool {
			// A publish that finished after the link was read unlocks its version only
			// once the link points at it.
			if currentVersion(outDir) == name {
				return false
			}
			_ = os.RemoveAll(dir)
			return true
		}
		if removeLocked(dir+lockSuffix, remove) {
			removed = append(removed, dir)
		}
	}
	return removed, nil
}

func currentVersion(outDir string) string {
	target, err := os.Readlink(outDir)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// removeLocked takes lockPath exclusively without waiting and runs fn. When fn reports
// success the lock file is removed too. It reports whether anything was removed.
func removeLocked(lockPath string, fn func() bool) bool {
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil || !ok {
		return false
	}
	defer fl.Unlock()
	if !fn() {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

// resolve returns the directory holding the artifacts of dir. When dir is a published
// link, the version it points at is returned with a shared lock that keeps Prune from
// removing it; the caller releases it.
func resolve(ctx context.Context, dir string) (string, *flock.Flock, error) {
	for attempt := 0; ; attempt++ {
		fi, err := os.Lstat(dir)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			return dir, nil, nil
		}
		target, err := os.Readlink(dir)
		if err != nil {
			return "", nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(dir), target)
		}
		fl := flock.New(target + lockSuffix)
		ok, err := fl.TryRLock()
		if err != nil {
			return "", nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
		}
		if ok {
			if _, err := os.Stat(target); err == nil {
				return target, fl, nil
			}
			// Pruned between reading the link and locking; the link has moved on.
			_ = fl.Unlock()
		}
		if attempt >= leaseRetries {
			return "", nil, fmt.Errorf("%w: %s", ErrBusy, target)
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(leaseBackoff):
		}
	}
}

// syncDir flushes directory entries so the renames survive a crash. Errors are ignored;
// not every platform supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
