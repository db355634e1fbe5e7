package main

import (
	"fmt"
	"strings"
)

const (
	serviceName = "gatekeeper"
	installPath = "/usr/local/bin/gatekeeper"
	backupPath  = "/usr/local/bin/gatekeeper.prev"
	dataDir     = "/var/lib/gatekeeper"
	unitPath    = "/etc/systemd/system/gatekeeper.service"
	serviceUser = "gatekeeper"
)

const unitTemplate = `[Unit]
Description=Gatekeeper camera safety gate
After=network.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s -listen :8080 -db %s/gatekeeper.db -migrations %s/migrations
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// executor is the subset of deploy.Executor the installer needs.
type executor interface {
	Run(command string) (string, error)
	RunSudo(command string) (string, error)
	CopyFile(src, dst string) error
	WriteFile(path, content string) error
}

type installer struct {
	exec       executor
	binaryPath string
}

func renderUnit() string {
	return fmt.Sprintf(unitTemplate, serviceUser, dataDir, installPath, dataDir, dataDir)
}

func (i *installer) run() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"create service user", i.createUser},
		{"create data directory", i.createDataDir},
		{"back up existing binary", i.backupBinary},
		{"copy binary", i.copyBinary},
		{"write systemd unit", i.writeUnit},
		{"enable and start service", i.startService},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (i *installer) createUser() error {
	out, _ := i.exec.Run(fmt.Sprintf("id -u %s", serviceUser))
	if strings.TrimSpace(out) != "" && !strings.Contains(out, "no such user") {
		return nil
	}
	_, err := i.exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser))
	return err
}

func (i *installer) createDataDir() error {
	if _, err := i.exec.RunSudo(fmt.Sprintf("mkdir -p %s", dataDir)); err != nil {
		return err
	}
	_, err := i.exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dataDir))
	return err
}

func (i *installer) backupBinary() error {
	out, _ := i.exec.Run(fmt.Sprintf("test -f %s && echo present", installPath))
	if !strings.Contains(out, "present") {
		return nil
	}
	_, err := i.exec.RunSudo(fmt.Sprintf("cp %s %s", installPath, backupPath))
	return err
}

func (i *installer) copyBinary() error {
	if err := i.exec.CopyFile(i.binaryPath, installPath); err != nil {
		return err
	}
	_, err := i.exec.RunSudo(fmt.Sprintf("chmod 755 %s", installPath))
	return err
}

func (i *installer) writeUnit() error {
	if err := i.exec.WriteFile("/tmp/gatekeeper.service", renderUnit()); err != nil {
		return err
	}
	if _, err := i.exec.RunSudo(fmt.Sprintf("mv /tmp/gatekeeper.service %s", unitPath)); err != nil {
		return err
	}
	_, err := i.exec.RunSudo("systemctl daemon-reload")
	return err
}

func (i *installer) startService() error {
	if _, err := i.exec.RunSudo(fmt.Sprintf("systemctl enable %s", serviceName)); err != nil {
		return err
	}
	_, err := i.exec.RunSudo(fmt.Sprintf("systemctl restart %s", serviceName))
	return err
}

// rollback restores the previous binary and restarts the service.
func rollback(exec executor) error {
	out, _ := exec.Run(fmt.Sprintf("test -f %s && echo present", backupPath))
	if !strings.Contains(out, "present") {
		return fmt.Errorf("no backup binary at %s", backupPath)
	}
	if _, err := exec.RunSudo(fmt.Sprintf("cp %s %s", backupPath, installPath)); err != nil {
		return err
	}
	if _, err := exec.RunSudo(fmt.Sprintf("systemctl restart %s", serviceName)); err != nil {
		return err
	}
	return nil
}
