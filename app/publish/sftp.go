package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHConfig struct {
	Host           string // host or host:port
	User           string
	KeyFile        string
	KnownHostsFile string
	Timeout        time.Duration
}

// remoteFS is the subset of an SFTP session the publisher needs.
type remoteFS interface {
	Create(path string) (io.WriteCloser, error)
	PosixRename(oldname, newname string) error
	Remove(path string) error
	MkdirAll(path string) error
	Close() error
}

type dialFunc func(ctx context.Context) (remoteFS, error)

// SFTPPublisher copies feeds to a remote directory over SSH.
type SFTPPublisher struct {
	dir  string
	dest string
	dial dialFunc
}

func NewSFTPPublisher(config SSHConfig, dir string) *SFTPPublisher {
	return &SFTPPublisher{
		dir:  dir,
		dest: fmt.Sprintf("%s@%s", config.User, config.Host),
		dial: func(ctx context.Context) (remoteFS, error) {
			return dialSFTP(ctx, config)
		},
	}
}

// Publish uploads to <file>.tmp and renames it over the destination, so a
// failed transfer leaves the previous feed in place.
func (p *SFTPPublisher) Publish(ctx context.Context, fileName string, data []byte) error {
	remotePath := path.Join(p.dir, fileName)
	dest := p.dest + ":" + remotePath

	fs, err := p.dial(ctx)
	if err != nil {
		return &PublishError{Stage: "connect", Dest: dest, Err: err}
	}
	defer func() {
		if err := fs.Close(); err != nil {
			slog.Debug("Failed to close SFTP session", "dest", dest, "error", err)
		}
	}()

	// Closing the session unblocks a transfer stuck on a dead connection.
	stop := context.AfterFunc(ctx, func() {
		_ = fs.Close()
	})
	defer stop()

	if p.dir != "" {
		if err := fs.MkdirAll(p.dir); err != nil {
			return &PublishError{Stage: "upload", Dest: dest, Err: withContext(ctx, fmt.Errorf("create remote directory: %w", err))}
		}
	}

	tmpPath := remotePath + ".tmp"
	if err := upload(fs, tmpPath, data); err != nil {
		_ = fs.Remove(tmpPath)
		return &PublishError{Stage: "upload", Dest: dest, Err: withContext(ctx, err)}
	}

	if err := ctx.Err(); err != nil {
		_ = fs.Remove(tmpPath)
		return &PublishError{Stage: "rename", Dest: dest, Err: err}
	}
	if err := fs.PosixRename(tmpPath, remotePath); err != nil {
		_ = fs.Remove(tmpPath)
		return &PublishError{Stage: "rename", Dest: dest, Err: withContext(ctx, err)}
	}

	slog.Info("Feed published", "dest", dest, "bytes", len(data))
	return nil
}

// withContext reports the context error as the cause when the session was
// closed because ctx ended.
func withContext(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func upload(fs remoteFS, remotePath string, data []byte) error {
	w, err := fs.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write remote file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close remote file: %w", err)
	}
	return nil
}

type sftpFS struct {
	client *sftp.Client
	conn   *ssh.Client
}

func (s *sftpFS) Create(path string) (io.WriteCloser, error) {
	return s.client.Create(path)
}

func (s *sftpFS) PosixRename(oldname, newname string) error {
	return s.client.PosixRename(oldname, newname)
}

func (s *sftpFS) Remove(path string) error {
	return s.client.Remove(path)
}

func (s *sftpFS) MkdirAll(path string) error {
	return s.client.MkdirAll(path)
}

func (s *sftpFS) Close() error {
	err := s.client.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func dialSFTP(ctx context.Context, config SSHConfig) (remoteFS, error) {
	key, err := os.ReadFile(config.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	hostKeyCallback, err := knownhosts.New(config.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	addr := config.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	dialCtx := ctx
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	var dialer net.Dialer
	netConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if config.Timeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(config.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	// The timeout bounds the handshake only; the transfer is bounded by ctx.
	_ = netConn.SetDeadline(time.Time{})
	conn := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start sftp session: %w", err)
	}

	return &sftpFS{client: client, conn: conn}, nil
}
