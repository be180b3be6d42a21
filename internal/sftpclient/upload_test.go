package sftpclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	testUser = "test-user"
	testPass = "test-pass"
)

// startServer runs an in-process SSH server exposing the sftp subsystem on
// the local filesystem.
func startServer(t *testing.T) (int, ssh.PublicKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPass {
				return nil, nil
			}
			return nil, fmt.Errorf("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(nc, cfg)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, signer.PublicKey()
}

func serve(nc net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, in, err := nch.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
				if !ok {
					continue
				}
				go func() {
					srv, err := sftp.NewServer(ch)
					if err != nil {
						_ = ch.Close()
						return
					}
					_ = srv.Serve()
					_ = srv.Close()
				}()
			}
		}()
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestUploadFileValidation(t *testing.T) {
	err := UploadFile(context.Background(), Config{}, "x.txt", "x.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sftp: missing SFTP_HOST / SFTP_USER / SFTP_PASS")
}

func TestUploadFiles(t *testing.T) {
	port, _ := startServer(t)
	local := t.TempDir()
	remote := filepath.Join(t.TempDir(), "inbound")
	a := writeFile(t, local, "export.json", `{"courses":[]}`)
	b := writeFile(t, local, "run-report.md", "# report")

	cfg := Config{
		Host: "127.0.0.1", Port: port, User: testUser, Pass: testPass,
		RemoteDir: filepath.ToSlash(remote), InsecureIgnoreHostKey: true,
	}
	paths, err := UploadFiles(context.Background(), cfg, []string{a, b})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	got, err := os.ReadFile(filepath.Join(remote, "export.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"courses":[]}`, string(got))
	got, err = os.ReadFile(filepath.Join(remote, "run-report.md"))
	require.NoError(t, err)
	assert.Equal(t, "# report", string(got))
}

func TestUploadVerifiesKnownHosts(t *testing.T) {
	port, key := startServer(t)
	local := t.TempDir()
	remote := filepath.Join(t.TempDir(), "drop")
	src := writeFile(t, local, "audit.csv", "ID\r\n")
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	good := writeFile(t, local, "known_hosts", knownhosts.Line([]string{knownhosts.Normalize(addr)}, key)+"\n")
	cfg := Config{Host: "127.0.0.1", Port: port, User: testUser, Pass: testPass, RemoteDir: filepath.ToSlash(remote), KnownHosts: good}
	require.NoError(t, UploadFile(context.Background(), cfg, src, "reset-unit-audit.csv"))
	_, err := os.Stat(filepath.Join(remote, "reset-unit-audit.csv"))
	require.NoError(t, err)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)
	cfg.KnownHosts = writeFile(t, local, "known_hosts_bad", knownhosts.Line([]string{knownhosts.Normalize(addr)}, other.PublicKey())+"\n")
	err = UploadFile(context.Background(), cfg, src, "again.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sftp: dial error")
}

func TestUploadWrongPassword(t *testing.T) {
	port, _ := startServer(t)
	cfg := Config{Host: "127.0.0.1", Port: port, User: testUser, Pass: "nope", InsecureIgnoreHostKey: true}
	err := UploadFile(context.Background(), cfg, "missing.txt", "missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sftp: dial error")
}

func TestHostKeyCallbackMissingFile(t *testing.T) {
	_, err := hostKeyCallback(Config{KnownHosts: filepath.Join(t.TempDir(), "none")})
	assert.Error(t, err)
}
