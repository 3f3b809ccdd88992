// Package remotefile reads and writes text files on game servers. Each
// operation opens a fresh authenticated session, acts and closes, so a
// failed operation never leaves a half-open login behind.
package remotefile

import (
	"context"
	"strings"

	"github.com/ernie/fortress-ops/internal/config"
)

// Client is the capability needed to manage server config files.
type Client interface {
	// FetchFile downloads the file at path.
	FetchFile(ctx context.Context, path string) ([]byte, error)
	// UploadFile overwrites the file at path with data.
	UploadFile(ctx context.Context, path string, data []byte) error
}

// New builds a client for the configured transfer backend.
func New(cfg config.FileTransfer) Client {
	if cfg.Kind == "sftp" {
		return &SFTPClient{host: cfg.Host, user: cfg.User, password: cfg.Password}
	}
	return &FTPClient{host: cfg.Host, user: cfg.User, password: cfg.Password}
}

// FetchLines downloads a file and splits it into lines, trimming
// trailing whitespace from each line.
func FetchLines(ctx context.Context, c Client, path string) ([]string, error) {
	data, err := c.FetchFile(ctx, path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return lines, nil
}

// AddOrEditLine replaces the first line starting with prefix by
// replacement, or appends replacement if no line matches. The whole
// file is rewritten. Returns true when the line was appended.
func AddOrEditLine(ctx context.Context, c Client, path, prefix, replacement string) (bool, error) {
	lines, err := FetchLines(ctx, c, path)
	if err != nil {
		return false, err
	}

	// Drop a trailing empty line so appends don't grow blank gaps.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	added := true
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = replacement
			added = false
			break
		}
	}
	if added {
		lines = append(lines, replacement)
	}

	if err := c.UploadFile(ctx, path, []byte(strings.Join(lines, "\n"))); err != nil {
		return false, err
	}
	return added, nil
}
