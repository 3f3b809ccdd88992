package remotefile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/ernie/fortress-ops/internal/domain"
)

const sshTimeout = 10 * time.Second

// SFTPClient performs file transfers over an SSH session. Like the FTP
// backend, every operation establishes and tears down its own session.
type SFTPClient struct {
	host     string
	user     string
	password string
}

func (c *SFTPClient) connect() (*ssh.Client, *sftp.Client, error) {
	sshConn, err := ssh.Dial("tcp", c.host, &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{ssh.Password(c.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w: %v", c.host, domain.ErrTransport, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, nil, fmt.Errorf("opening sftp session to %s: %w: %v", c.host, domain.ErrTransport, err)
	}
	return sshConn, client, nil
}

// FetchFile downloads the file at path
func (c *SFTPClient) FetchFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sshConn, client, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer sshConn.Close()
	defer client.Close()

	f, err := client.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w: %v", path, domain.ErrTransport, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %v", path, domain.ErrTransport, err)
	}
	return data, nil
}

// UploadFile overwrites the file at path
func (c *SFTPClient) UploadFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sshConn, client, err := c.connect()
	if err != nil {
		return err
	}
	defer sshConn.Close()
	defer client.Close()

	f, err := client.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w: %v", path, domain.ErrTransport, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w: %v", path, domain.ErrTransport, err)
	}
	return f.Close()
}
