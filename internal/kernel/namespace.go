package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Namespace is a namespace context: the bind-mounted handle, an auxiliary
// raw packet socket for ioctl use, and a dedicated netlink socket. It is
// owned exclusively by whoever opened it (the namespace cache, or the
// worker body itself for the always-live root/default contexts).
type Namespace struct {
	Name string

	file *os.File // bind-mounted namespace file, open for setns
	ioctl int      // raw packet socket bound inside the namespace, for ioctls
	nl    *netlinkw.Socket
}

// FD returns the namespace file descriptor, suitable for setns.
func (n *Namespace) FD() int { return int(n.file.Fd()) }

// Netlink returns the namespace's dedicated netlink socket.
func (n *Namespace) Netlink() *netlinkw.Socket { return n.nl }

// IoctlFD returns the raw packet socket used for interface ioctls within
// this namespace.
func (n *Namespace) IoctlFD() int { return n.ioctl }

// Invalidate closes the two file descriptors this context owns and
// releases its netlink resources. It never removes the underlying
// namespace file, which survives until explicitly deleted.
func (n *Namespace) Invalidate() error {
	var firstErr error
	if n.ioctl >= 0 {
		if err := unix.Close(n.ioctl); err != nil && firstErr == nil {
			firstErr = err
		}
		n.ioctl = -1
	}
	if n.nl != nil {
		if err := n.nl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		n.nl = nil
	}
	if n.file != nil {
		if err := n.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		n.file = nil
	}
	return firstErr
}

func namespacePath(prefix, name string) string {
	return filepath.Join(namespaceDir, prefix+name)
}

// OpenNamespace looks up prefix+name under the namespace directory. If the
// file exists and excl is false, it is opened directly; if it exists and
// excl is true, an error is returned. If the file is absent and create is
// false, the error carries ENOENT. If it is absent and create is true, a new
// namespace is created: the calling OS thread unshares its network
// namespace, /proc/self/ns/net is bind-mounted onto the target file, and
// the file is reopened to obtain a stable handle independent of the
// unshare. The caller must not call OpenNamespace concurrently with other
// syscalls on the current thread; the work pipeline satisfies this by
// giving each worker process exactly one OS thread doing kernel work.
func (k *Interface) OpenNamespace(prefix, name string, create, excl bool) (*Namespace, error) {
	path := namespacePath(prefix, name)

	_, statErr := os.Stat(path)
	exists := statErr == nil

	if exists && excl {
		return nil, fmt.Errorf("kernel: namespace %q already exists", name)
	}

	if !exists {
		if !create {
			return nil, wrapErrno("open namespace", unix.ENOENT)
		}
		if err := createNamespaceFile(path); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, wrapErrno("open namespace file", err)
	}

	ioctlFD, err := openIoctlSocket(int(f.Fd()))
	if err != nil {
		f.Close()
		return nil, err
	}

	nl, err := netlinkw.OpenSocket()
	if err != nil {
		unix.Close(ioctlFD)
		f.Close()
		return nil, err
	}

	return &Namespace{Name: name, file: f, ioctl: ioctlFD, nl: nl}, nil
}

// createNamespaceFile performs the unshare+bind-mount dance that creates a
// brand new namespace file at path.
func createNamespaceFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return wrapErrno("create namespace placeholder", err)
	}
	f.Close()

	origin, err := netns.Get()
	if err != nil {
		return wrapErrno("save origin namespace", err)
	}
	defer origin.Close()
	defer netns.Set(origin)

	if err := unix.Unshare(unix.CLONE_NEWNET); err != nil {
		os.Remove(path)
		return wrapErrno("unshare NEWNET", err)
	}

	if err := unix.Mount("/proc/self/ns/net", path, "", unix.MS_BIND, ""); err != nil {
		os.Remove(path)
		return wrapErrno("bind-mount namespace", err)
	}

	return nil
}

// openIoctlSocket opens a raw packet socket inside the namespace identified
// by nsFD, for use with interface ioctls (SIOCGIFINDEX, SIOCETHTOOL, ...).
func openIoctlSocket(nsFD int) (int, error) {
	origin, err := netns.Get()
	if err != nil {
		return -1, wrapErrno("save origin namespace for ioctl socket", err)
	}
	defer origin.Close()
	defer netns.Set(origin)

	if err := unix.Setns(nsFD, unix.CLONE_NEWNET); err != nil {
		return -1, wrapErrno("setns for ioctl socket", err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, wrapErrno("open ioctl socket", err)
	}
	return fd, nil
}

// DeleteNamespace lazily unmounts then unlinks prefix+name.
func (k *Interface) DeleteNamespace(prefix, name string) error {
	path := namespacePath(prefix, name)
	if err := unix.Unmount(path, unix.MNT_DETACH); err != nil && err != unix.EINVAL {
		return wrapErrno("unmount namespace", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrapErrno("unlink namespace", err)
	}
	return nil
}

// EnumerateNamespaces lists files under the namespace directory beginning
// with prefix, invoking fn with each bare name (prefix stripped).
func (k *Interface) EnumerateNamespaces(prefix string, fn func(name string) error) error {
	entries, err := os.ReadDir(namespaceDir)
	if err != nil {
		return wrapErrno("readdir namespace dir", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := fn(strings.TrimPrefix(e.Name(), prefix)); err != nil {
			return err
		}
	}
	return nil
}

// OpenDefaultNamespaceFD opens /proc/1/ns/net, the process's default
// (PID 1's) network namespace, for use as a MoveInterface target when
// restoring an interface that was moved into a worker-owned namespace.
// The caller owns the returned fd and must close it.
func (k *Interface) OpenDefaultNamespaceFD() (int, error) {
	f, err := os.Open("/proc/1/ns/net")
	if err != nil {
		return -1, wrapErrno("open default namespace", err)
	}
	defer f.Close()
	return unix.Dup(int(f.Fd()))
}

// Switch performs setns(fd, NEWNET) on the calling thread. If ns is nil,
// the process's default (PID 1's) namespace is restored via a temporary
// open of /proc/1/ns/net.
func (k *Interface) Switch(ns *Namespace) error {
	if ns != nil {
		return wrapErrno("setns", unix.Setns(ns.FD(), unix.CLONE_NEWNET))
	}

	f, err := os.Open("/proc/1/ns/net")
	if err != nil {
		return wrapErrno("open default namespace", err)
	}
	defer f.Close()

	return wrapErrno("setns default", unix.Setns(int(f.Fd()), unix.CLONE_NEWNET))
}
