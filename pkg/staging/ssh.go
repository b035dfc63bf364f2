package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/datadock/datadock/pkg/errors"
)

// SSHConfig collects the connection parameters for the staging host. The
// host, port and username come from the approved storage box; the key path
// is local.
type SSHConfig struct {
	Host     string
	Port     string
	Username string
	KeyPath  string
	Timeout  time.Duration
}

// SSHTransport implements Transport over a single SSH connection. Chunk
// content goes through the SFTP subsystem, everything else runs as a remote
// shell command.
type SSHTransport struct {
	client  *ssh.Client
	sftp    *sftp.Client
	timeout time.Duration

	mu       sync.Mutex
	madeDirs map[string]bool
}

// Dial connects to the staging host and starts the SFTP subsystem. Host
// trust is established by the registration approval rather than a
// known_hosts file.
func Dial(config SSHConfig) (*SSHTransport, error) {
	keyPath, err := homedirExpand(config.KeyPath)
	if err != nil {
		return nil, errors.WithContext(err, "expand key path")
	}

	key, err := afero.ReadFile(fs, keyPath)
	if err != nil {
		return nil, errors.WithContext(err, "read private key")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.WithContext(err, "parse private key")
	}

	clientConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         config.Timeout,
	}

	addr := net.JoinHostPort(config.Host, config.Port)
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, errors.NewTransportError(
			fmt.Sprintf("connect to staging host %s", addr), err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, errors.NewTransportError("start sftp subsystem", err)
	}

	return &SSHTransport{
		client:   client,
		sftp:     sftpClient,
		timeout:  config.Timeout,
		madeDirs: map[string]bool{},
	}, nil
}

// QuerySize asks the staging host for the length of the file at remotePath.
// A missing file is reported as length zero.
func (t *SSHTransport) QuerySize(ctx context.Context, remotePath string) (int64, error) {
	output, err := t.run(ctx, "wc -c "+quote(remotePath))
	if strings.Contains(output, "No such file or directory") {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseWcOutput(output, remotePath)
}

// EnsureDir creates dir and any missing parents. Directories already created
// over this connection are remembered, so uploads into the same dataset
// don't pay a round trip per file.
func (t *SSHTransport) EnsureDir(ctx context.Context, dir string) error {
	t.mu.Lock()
	made := t.madeDirs[dir]
	t.mu.Unlock()
	if made {
		return nil
	}

	if _, err := t.run(ctx, "mkdir -p "+quote(dir)); err != nil {
		return err
	}

	t.mu.Lock()
	t.madeDirs[dir] = true
	t.mu.Unlock()
	return nil
}

// PutTemp replaces the remote file at remotePath with the bytes read from
// chunk. SFTP keeps the content byte-exact, which a shell pipe would not.
func (t *SSHTransport) PutTemp(ctx context.Context, remotePath string, chunk io.Reader) error {
	if ctx.Err() != nil {
		return errors.ErrCanceled
	}

	file, err := t.sftp.Create(remotePath)
	if err != nil {
		return errors.NewTransportError("create remote chunk", err)
	}
	if _, err := file.ReadFrom(chunk); err != nil {
		file.Close()
		return errors.NewTransportError("write remote chunk", err)
	}
	if err := file.Close(); err != nil {
		return errors.NewTransportError("flush remote chunk", err)
	}
	return nil
}

// AppendAndCleanup splices the staged chunk at tmpPath onto the end of
// finalPath and removes tmpPath. The first chunk of an upload truncates the
// final file instead of appending.
func (t *SSHTransport) AppendAndCleanup(ctx context.Context, tmpPath, finalPath string, truncate bool) error {
	redirect := ">>"
	if truncate {
		redirect = ">"
	}
	cmd := fmt.Sprintf("cat %s %s %s && rm -f %s",
		quote(tmpPath), redirect, quote(finalPath), quote(tmpPath))
	_, err := t.run(ctx, cmd)
	return err
}

// RemoveTemp deletes the remote file at remotePath if it exists.
func (t *SSHTransport) RemoveTemp(ctx context.Context, remotePath string) error {
	_, err := t.run(ctx, "rm -f "+quote(remotePath))
	return err
}

// Close tears down the SFTP subsystem and the SSH connection.
func (t *SSHTransport) Close() error {
	if err := t.sftp.Close(); err != nil {
		t.client.Close()
		return err
	}
	return t.client.Close()
}

// run executes a shell command on the staging host and returns its combined
// output. Commands that outlive the timeout or the context are abandoned;
// closing the session terminates them remotely.
func (t *SSHTransport) run(ctx context.Context, cmd string) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", errors.NewTransportError("open ssh session", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.WithField("cmd", cmd).Debug("Running staging command")
	if err := session.Start(cmd); err != nil {
		return "", errors.NewTransportError(cmd, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	var timeoutCh <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-done:
		// The buffers are only complete once Wait has returned.
		output := stdout.String() + stderr.String()
		if err != nil {
			return output, errors.NewTransportError(cmd,
				fmt.Errorf("%v: %s", err, strings.TrimSpace(output)))
		}
		return output, nil
	case <-timeoutCh:
		return "", errors.NewTransportError(cmd,
			fmt.Errorf("timed out after %s", t.timeout))
	case <-ctx.Done():
		return "", errors.ErrCanceled
	}
}

var wcPattern = regexp.MustCompile(`^(\d+)\s+\S+`)

// parseWcOutput extracts the byte count from `wc -c` output. Every line is
// tried because some hosts print login banners before the result.
func parseWcOutput(output, remotePath string) (int64, error) {
	for _, line := range strings.Split(output, "\n") {
		match := wcPattern.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		size, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		return size, nil
	}
	return 0, errors.NewTransportError("query remote size",
		fmt.Errorf("unexpected wc output for %q: %q",
			remotePath, strings.TrimSpace(output)))
}

// quote wraps s in single quotes for the remote shell, escaping any single
// quotes inside it.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
