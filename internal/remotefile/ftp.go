package remotefile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/ernie/fortress-ops/internal/domain"
)

const ftpTimeout = 10 * time.Second

// FTPClient performs file transfers over plain FTP. Every operation
// dials, logs in, acts and quits.
type FTPClient struct {
	host     string
	user     string
	password string
}

func (c *FTPClient) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(c.host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w: %v", c.host, domain.ErrTransport, err)
	}
	if err := conn.Login(c.user, c.password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("logging in to %s: %w: %v", c.host, domain.ErrAuth, err)
	}
	return conn, nil
}

// FetchFile downloads the file at path
func (c *FTPClient) FetchFile(ctx context.Context, path string) ([]byte, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, fmt.Errorf("retrieving %s: %w: %v", path, domain.ErrTransport, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %v", path, domain.ErrTransport, err)
	}
	return data, nil
}

// UploadFile overwrites the file at path
func (c *FTPClient) UploadFile(ctx context.Context, path string, data []byte) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Stor(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storing %s: %w: %v", path, domain.ErrTransport, err)
	}
	return nil
}
