// Package deploy runs commands and places files on the host that serves the
// gatekeeper, either directly or over SSH.
package deploy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Logger receives debug traces of every command the executor runs.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Executor runs shell commands on a deployment target. A target of
// "localhost", "127.0.0.1", or the empty string runs them directly; anything
// else goes through ssh/scp.
type Executor struct {
	host   string
	user   string
	key    string
	agent  string
	dryRun bool
	logger Logger
}

// NewExecutor builds an executor for the given target. user, key, and agent
// may be empty, in which case the ssh client falls back to its own defaults.
func NewExecutor(host, user, key, agent string, dryRun bool) *Executor {
	return &Executor{
		host:   host,
		user:   user,
		key:    key,
		agent:  agent,
		dryRun: dryRun,
		logger: nopLogger{},
	}
}

// SetLogger replaces the debug logger. A nil logger is ignored.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// IsLocal reports whether commands run on this machine rather than over SSH.
func (e *Executor) IsLocal() bool {
	return e.host == "" || e.host == "localhost" || e.host == "127.0.0.1"
}

// Run executes command on the target and returns its combined output.
func (e *Executor) Run(command string) (string, error) {
	return e.run(command, false)
}

// RunSudo executes command on the target under sudo.
func (e *Executor) RunSudo(command string) (string, error) {
	return e.run("sudo "+command, true)
}

func (e *Executor) run(command string, sudo bool) (string, error) {
	if e.dryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", command), nil
	}
	e.logger.Debugf("run: %s (target=%s local=%v sudo=%v)", command, e.host, e.IsLocal(), sudo)

	var cmd *exec.Cmd
	if e.IsLocal() {
		cmd = exec.Command("sh", "-c", command)
	} else {
		cmd = e.sshCommand(command)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		e.logger.Debugf("run failed: %v, output: %s", err, out)
	}
	return string(out), err
}

// CopyFile places the local file src at dst on the target. Destinations under
// system prefixes are written through sudo; remote copies stage through /tmp.
func (e *Executor) CopyFile(src, dst string) error {
	if e.dryRun {
		return nil
	}
	e.logger.Debugf("copy: %s -> %s (target=%s)", src, dst, e.host)

	var err error
	if e.IsLocal() {
		err = e.copyLocal(src, dst)
	} else {
		err = e.copyRemote(src, dst)
	}
	if err != nil {
		e.logger.Debugf("copy failed: %v", err)
	}
	return err
}

// WriteFile writes content to path on the target.
func (e *Executor) WriteFile(path, content string) error {
	if e.dryRun {
		return nil
	}
	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0644)
	}

	cmd := e.sshCommand("cat > " + path)
	cmd.Stdin = strings.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ssh write failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// sshOptions holds the flags shared by ssh and scp invocations. Host key
// checking is disabled: targets are rebuilt robots on a trusted LAN and their
// keys churn with every reimage.
func (e *Executor) sshOptions() []string {
	var args []string
	if e.key != "" {
		args = append(args, "-i", e.key)
	}
	if e.agent != "" {
		args = append(args, "-o", "IdentityAgent="+e.agent)
	}
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)
	return args
}

func (e *Executor) sshTarget() string {
	if e.user != "" && !strings.Contains(e.host, "@") {
		return e.user + "@" + e.host
	}
	return e.host
}

func (e *Executor) sshCommand(command string) *exec.Cmd {
	args := append(e.sshOptions(), e.sshTarget(), command)
	return exec.Command("ssh", args...)
}

// needsSudo reports whether dst sits under a prefix only root can write.
// /var/folders is the macOS per-user temp tree and is exempt.
func needsSudo(dst string) bool {
	return strings.HasPrefix(dst, "/usr") ||
		strings.HasPrefix(dst, "/etc") ||
		(strings.HasPrefix(dst, "/var") && !strings.HasPrefix(dst, "/var/folders"))
}

func (e *Executor) copyLocal(src, dst string) error {
	if needsSudo(dst) {
		return exec.Command("sudo", "cp", src, dst).Run()
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (e *Executor) copyRemote(src, dst string) error {
	// scp into /tmp first: the ssh account usually cannot write the final
	// destination directly.
	tempPath := fmt.Sprintf("/tmp/gatekeeper-copy-%d", time.Now().Unix())
	args := append(e.sshOptions(), src, e.sshTarget()+":"+tempPath)
	e.logger.Debugf("scp %v", args)
	if err := exec.Command("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w", err)
	}

	mv := fmt.Sprintf("mv %s %s", tempPath, dst)
	var err error
	if needsSudo(dst) {
		_, err = e.RunSudo(mv)
	} else {
		_, err = e.Run(mv)
	}
	return err
}
