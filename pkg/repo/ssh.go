package repo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshBackend syncs a remote recipe tree over SSH/SFTP. A fresh
// connection is made per sync; repository syncs are infrequent enough
// that pooling would buy nothing.
type sshBackend struct {
	name       string
	address    string
	user       string
	remotePath string
	keyPath    string
	knownHosts string
}

func newSSHBackend(name string, spec Spec) (*sshBackend, error) {
	if spec.Host == "" {
		return nil, NewInvalidSpecError(name, "ssh repository requires a host")
	}
	if spec.User == "" {
		return nil, NewInvalidSpecError(name, "ssh repository requires a user")
	}
	if spec.RemotePath == "" {
		return nil, NewInvalidSpecError(name, "ssh repository requires a remote path")
	}

	port := spec.Port
	if port == 0 {
		port = 22
	}

	keyPath := spec.PrivateKeyPath
	if keyPath == "" {
		keyPath = findDefaultKey()
		if keyPath == "" {
			return nil, NewInvalidSpecError(name, "no private key configured and no default key found")
		}
	}

	return &sshBackend{
		name:       name,
		address:    fmt.Sprintf("%s:%d", spec.Host, port),
		user:       spec.User,
		remotePath: spec.RemotePath,
		keyPath:    keyPath,
		knownHosts: spec.KnownHostsPath,
	}, nil
}

// findDefaultKey probes the usual private key locations.
func findDefaultKey() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (b *sshBackend) Kind() Kind { return KindSSH }

func (b *sshBackend) clientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(b.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if b.knownHosts != "" {
		hostKeyCallback, err = knownhosts.New(b.knownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            b.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (b *sshBackend) Sync(ctx context.Context, dest string) error {
	cfg, err := b.clientConfig()
	if err != nil {
		return NewSyncFailedError(b.name, err)
	}

	client, err := ssh.Dial("tcp", b.address, cfg)
	if err != nil {
		return NewSyncFailedError(b.name, fmt.Errorf("failed to connect to %s: %w", b.address, err))
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return NewSyncFailedError(b.name, fmt.Errorf("failed to open sftp session: %w", err))
	}
	defer sftpClient.Close()

	walker := sftpClient.Walk(b.remotePath)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return NewSyncFailedError(b.name, err)
		}
		if err := walker.Err(); err != nil {
			return NewSyncFailedError(b.name, fmt.Errorf("failed to walk remote tree: %w", err))
		}
		if walker.Stat().IsDir() || !isRecipeFile(walker.Path()) {
			continue
		}

		rel, err := filepath.Rel(b.remotePath, walker.Path())
		if err != nil {
			return NewSyncFailedError(b.name, err)
		}
		if err := b.download(sftpClient, walker.Path(), filepath.Join(dest, rel)); err != nil {
			return NewSyncFailedError(b.name, err)
		}
	}

	return nil
}

func (b *sshBackend) download(client *sftp.Client, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return dst.Close()
}
