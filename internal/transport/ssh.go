package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultAddr is where the test VM exposes its SSH daemon.
	DefaultAddr = "localhost:2233"
	// DefaultUser is the login on the device.
	DefaultUser = "root"
	// DefaultCommand streams the kernel log as it is written.
	DefaultCommand = "dmesg --follow"
	// DefaultDialTimeout bounds the TCP connect and SSH handshake.
	DefaultDialTimeout = 10 * time.Second
)

// SSH runs a command on the device and streams its standard output.
type SSH struct {
	// Addr is host:port of the device.
	Addr string
	// User is the login name.
	User string
	// KeyFile is the private key used for public-key auth.
	KeyFile string
	// KnownHosts is an OpenSSH known_hosts file. When empty the host key is
	// not checked, which is only acceptable for throwaway test VMs.
	KnownHosts string
	// Command is run on the device; its stdout is the stream.
	Command string
	// Timeout bounds dialing and the handshake.
	Timeout time.Duration
	// Logger receives connection notices.
	Logger *slog.Logger
}

// Name returns user@addr.
func (s *SSH) Name() string {
	return s.user() + "@" + s.addr()
}

func (s *SSH) addr() string {
	if s.Addr == "" {
		return DefaultAddr
	}
	return s.Addr
}

func (s *SSH) user() string {
	if s.User == "" {
		return DefaultUser
	}
	return s.User
}

func (s *SSH) command() string {
	if s.Command == "" {
		return DefaultCommand
	}
	return s.Command
}

func (s *SSH) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultDialTimeout
	}
	return s.Timeout
}

func (s *SSH) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// clientConfig loads the key and host key policy.
func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	if s.KeyFile == "" {
		return nil, errors.New("ssh: no key file configured")
	}
	pem, err := os.ReadFile(s.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", s.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", s.KeyFile, err)
	}

	var hostKey ssh.HostKeyCallback
	if s.KnownHosts != "" {
		hostKey, err = knownhosts.New(s.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", s.KnownHosts, err)
		}
	} else {
		s.logger().Warn("ssh host key not verified", "addr", s.addr())
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            s.user(),
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKey,
		Timeout:         s.timeout(),
	}, nil
}

// Open connects, starts the command and returns its stdout.
func (s *SSH) Open(ctx context.Context) (io.ReadCloser, error) {
	cfg, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := s.addr()
	d := net.Dialer{Timeout: s.timeout()}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake does not take a context; bound it with a deadline.
	_ = conn.SetDeadline(time.Now().Add(s.timeout()))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ssh session %s: %w", addr, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh stdout %s: %w", addr, err)
	}
	cmd := s.command()
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("ssh start %q on %s: %w", cmd, addr, err)
	}

	s.logger().Info("device connected", "addr", addr, "user", s.user(), "command", cmd)
	return &sshStream{r: stdout, sess: sess, client: client}, nil
}

// sshStream owns the session and its client.
type sshStream struct {
	r      io.Reader
	sess   *ssh.Session
	client *ssh.Client
}

func (st *sshStream) Read(p []byte) (int, error) {
	return st.r.Read(p)
}

func (st *sshStream) Close() error {
	serr := st.sess.Close()
	if errors.Is(serr, io.EOF) {
		serr = nil
	}
	return errors.Join(serr, st.client.Close())
}
