// Package sftpclient uploads run artifacts (snapshots, reports, audit CSVs)
// to an SFTP drop directory.
package sftpclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"lms-migrate/internal/errors"
)

type Config struct {
	Host      string
	Port      int
	User      string
	Pass      string
	RemoteDir string
	// InsecureIgnoreHostKey skips host verification. Otherwise the host key
	// must be listed in KnownHosts (default ~/.ssh/known_hosts).
	InsecureIgnoreHostKey bool
	KnownHosts            string
	Timeout               time.Duration
}

// UploadFile uploads one local file under remoteFileName.
func UploadFile(ctx context.Context, cfg Config, localPath string, remoteFileName string) error {
	return withClient(ctx, cfg, func(cli *sftp.Client, dir string) error {
		_, err := put(cli, localPath, path.Join(dir, remoteFileName))
		return err
	})
}

// UploadFiles uploads every file over one connection, keeping base names,
// and returns the remote paths in input order.
func UploadFiles(ctx context.Context, cfg Config, localPaths []string) ([]string, error) {
	var out []string
	err := withClient(ctx, cfg, func(cli *sftp.Client, dir string) error {
		for _, p := range localPaths {
			if err := ctx.Err(); err != nil {
				return err
			}
			remote, err := put(cli, p, path.Join(dir, filepath.Base(p)))
			if err != nil {
				return err
			}
			out = append(out, remote)
		}
		return nil
	})
	return out, err
}

func withClient(ctx context.Context, cfg Config, fn func(cli *sftp.Client, dir string) error) error {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return errors.New("sftp: missing SFTP_HOST / SFTP_USER / SFTP_PASS")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	cb, err := hostKeyCallback(cfg)
	if err != nil {
		return err
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         cfg.Timeout,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	// ctx para timeout/cancel
	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return errors.Wrap(ctx.Err(), "sftp: dial canceled")
	case r := <-ch:
		if r.err != nil {
			return errors.Wrap(r.err, "sftp: dial error")
		}
		sshClient = r.client
	}
	defer sshClient.Close()

	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		return errors.Wrap(err, "sftp: new client")
	}
	defer cli.Close()

	// Asegura dir destino
	if err := cli.MkdirAll(cfg.RemoteDir); err != nil {
		return errors.Wrapf(err, "sftp: mkdir %s", cfg.RemoteDir)
	}
	return fn(cli, cfg.RemoteDir)
}

func put(cli *sftp.Client, localPath, remotePath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, "sftp: open local file")
	}
	defer src.Close()

	dst, err := cli.Create(remotePath)
	if err != nil {
		return "", errors.Wrapf(err, "sftp: create %s", remotePath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", errors.Wrapf(err, "sftp: upload %s", remotePath)
	}
	if err := dst.Close(); err != nil {
		return "", errors.Wrapf(err, "sftp: close %s", remotePath)
	}
	return remotePath, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHosts
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "sftp: locate known_hosts")
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "sftp: load %s", file),
			"set SFTP_INSECURE_IGNORE_HOSTKEY=true or point sftp.known_hosts at a valid file")
	}
	return cb, nil
}
