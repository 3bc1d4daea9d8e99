//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Default host directories made visible, read-only, as the minimal
// base layer of every sandbox.
var defaultBaseLayers = []string{"/bin", "/sbin", "/usr", "/lib", "/lib64", "/etc"}

// NamespaceProvider creates sandboxes from Linux namespaces: a private
// mount namespace rooted at a scratch directory, private PID and IPC
// namespaces, and a private network namespace unless the recipe
// declares it needs network. Requires CAP_SYS_ADMIN.
type NamespaceProvider struct {
	// BaseDir roots all sandbox directories, e.g. <store>/sandbox.
	BaseDir string

	// BaseLayers are host directories bind-mounted read-only into
	// every sandbox. Nil means the default minimal layer set.
	BaseLayers []string
}

// Create builds the sandbox directory tree and its mounts.
func (p *NamespaceProvider) Create(ctx context.Context, spec EnvSpec) (Environment, error) {
	if p.BaseDir == "" {
		return nil, fmt.Errorf("namespace provider has no base directory")
	}
	if err := os.MkdirAll(p.BaseDir, 0o755); err != nil {
		return nil, err
	}

	root, err := os.MkdirTemp(p.BaseDir, spec.Name+"-")
	if err != nil {
		return nil, err
	}

	env := &namespaceEnv{
		root:    root,
		output:  spec.Output,
		network: spec.Network,
	}

	if err := env.setup(p.baseLayers(), spec.Deps); err != nil {
		env.Teardown()
		return nil, err
	}
	return env, nil
}

func (p *NamespaceProvider) baseLayers() []string {
	if p.BaseLayers != nil {
		return p.BaseLayers
	}
	return defaultBaseLayers
}

type namespaceEnv struct {
	root    string
	output  string
	network bool

	// mounts records mount targets in mount order for teardown.
	mounts []string

	mu   sync.Mutex
	done bool
}

func (e *namespaceEnv) setup(layers []string, deps []DepMount) error {
	for _, dir := range []string{"work", "deps", "proc", "dev", "tmp"} {
		if err := os.MkdirAll(filepath.Join(e.root, dir), 0o755); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Join(e.root, "work", e.output), 0o755); err != nil {
		return err
	}

	for _, layer := range layers {
		if _, err := os.Stat(layer); err != nil {
			continue
		}
		if err := e.bindReadOnly(layer, filepath.Join(e.root, layer)); err != nil {
			return fmt.Errorf("failed to mount base layer %s: %w", layer, err)
		}
	}

	for _, dep := range deps {
		target := filepath.Join(e.root, "deps", dep.Package)
		if err := e.bindReadOnly(dep.Source, target); err != nil {
			return fmt.Errorf("failed to mount dependency %s: %w", dep.Package, err)
		}
	}

	// A usable /dev subset; everything else in /dev stays invisible.
	for _, node := range []string{"/dev/null", "/dev/zero", "/dev/urandom"} {
		target := filepath.Join(e.root, node)
		if err := touch(target); err != nil {
			return err
		}
		if err := unix.Mount(node, target, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("failed to mount %s: %w", node, err)
		}
		e.mounts = append(e.mounts, target)
	}

	// proc is not mounted here: an instance created from the host
	// shows host processes to the build. Run mounts it after the
	// clone, inside the private PID namespace.
	return nil
}

func (e *namespaceEnv) bindReadOnly(src, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	if err := unix.Mount(src, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return err
	}
	e.mounts = append(e.mounts, target)

	// mount_setattr with AT_RECURSIVE locks submounts of the bound tree
	// as well; the remount fallback covers only the top-level mount
	// because the kernel ignores MS_REC on remount.
	attr := unix.MountAttr{Attr_set: unix.MOUNT_ATTR_RDONLY}
	if err := unix.MountSetattr(unix.AT_FDCWD, target, unix.AT_RECURSIVE, &attr); err == nil {
		return nil
	}
	return unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, "")
}

func (e *namespaceEnv) OutputPath() string {
	return filepath.Join(e.root, "work", e.output)
}

func (e *namespaceEnv) Run(ctx context.Context, step string, extra map[string]string, out io.Writer) (int, error) {
	// The proc mount happens inside the clone so it is an instance of
	// the private PID namespace, not the host's. It lives in the
	// child's mount namespace and vanishes with it.
	script := "mount -t proc proc /proc 2>/dev/null\n" + step
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Dir = "/work"
	cmd.Stdout = out
	cmd.Stderr = out

	flags := unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWIPC
	if !e.network {
		flags |= unix.CLONE_NEWNET
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: uintptr(flags),
		Chroot:     e.root,
		Setpgid:    true,
	}

	// Paths in the step environment are sandbox-relative.
	env := []string{
		"PATH=/usr/bin:/bin:/usr/sbin:/sbin",
		"HOME=/work",
		"TMPDIR=/tmp",
		"STORM_OUT=" + filepath.Join("/work", e.output),
		"STORM_DEPS=/deps",
		"STORM_WORK=/work",
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	// On cancellation the whole process group goes down, not just the
	// shell.
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (e *namespaceEnv) Teardown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil
	}
	e.done = true

	var firstErr error
	for i := len(e.mounts) - 1; i >= 0; i-- {
		if err := unix.Unmount(e.mounts[i], unix.MNT_DETACH); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unmount %s: %w", e.mounts[i], err)
		}
	}
	if err := os.RemoveAll(e.root); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
