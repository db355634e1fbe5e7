package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
# robots
Host robot-7
    HostName 192.168.4.20
    User ops
    IdentityFile ~/.ssh/robot_ed25519
    IdentityAgent "~/agent.sock"

Host bastion
    HostName jump.example.com
    User gateway
`

func TestParseSSHConfigMatchingHost(t *testing.T) {
	entry, err := parseSSHConfig(strings.NewReader(sampleConfig), "robot-7", "/home/ops")
	if err != nil {
		t.Fatalf("parseSSHConfig: %v", err)
	}
	if entry == nil {
		t.Fatal("no entry for robot-7")
	}
	if entry.hostName != "192.168.4.20" {
		t.Errorf("hostName = %q", entry.hostName)
	}
	if entry.user != "ops" {
		t.Errorf("user = %q", entry.user)
	}
	if entry.identityFile != "/home/ops/.ssh/robot_ed25519" {
		t.Errorf("identityFile = %q, want the tilde expanded", entry.identityFile)
	}
	if entry.identityAgent != "/home/ops/agent.sock" {
		t.Errorf("identityAgent = %q, want quotes stripped and tilde expanded", entry.identityAgent)
	}
}

func TestParseSSHConfigStopsAtNextHostBlock(t *testing.T) {
	entry, err := parseSSHConfig(strings.NewReader(sampleConfig), "bastion", "/home/ops")
	if err != nil {
		t.Fatalf("parseSSHConfig: %v", err)
	}
	if entry == nil {
		t.Fatal("no entry for bastion")
	}
	// robot-7's keywords must not bleed into the bastion block.
	if entry.identityFile != "" || entry.identityAgent != "" {
		t.Errorf("bastion picked up another block's keys: %+v", entry)
	}
	if entry.user != "gateway" {
		t.Errorf("user = %q", entry.user)
	}
}

func TestParseSSHConfigUnknownHost(t *testing.T) {
	entry, err := parseSSHConfig(strings.NewReader(sampleConfig), "nonesuch", "/home/ops")
	if err != nil {
		t.Fatalf("parseSSHConfig: %v", err)
	}
	if entry != nil {
		t.Errorf("entry for unknown host: %+v", entry)
	}
}

func writeSSHConfig(t *testing.T, content string) {
	t.Helper()
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0700); err != nil {
		t.Fatal(err)
	}
	if content != "" {
		if err := os.WriteFile(filepath.Join(home, ".ssh", "config"), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("HOME", home)
}

func TestResolveSSHTargetUsesConfig(t *testing.T) {
	writeSSHConfig(t, sampleConfig)

	host, user, key, agent, err := ResolveSSHTarget("robot-7", "", "")
	if err != nil {
		t.Fatalf("ResolveSSHTarget: %v", err)
	}
	if host != "192.168.4.20" {
		t.Errorf("host = %q, want the HostName from config", host)
	}
	if user != "ops" {
		t.Errorf("user = %q", user)
	}
	if !strings.HasSuffix(key, "/.ssh/robot_ed25519") {
		t.Errorf("key = %q", key)
	}
	if !strings.HasSuffix(agent, "/agent.sock") {
		t.Errorf("agent = %q", agent)
	}
}

func TestResolveSSHTargetExplicitOverrides(t *testing.T) {
	writeSSHConfig(t, sampleConfig)

	host, user, key, _, err := ResolveSSHTarget("admin@robot-7", "ignored", "/explicit/key")
	if err != nil {
		t.Fatalf("ResolveSSHTarget: %v", err)
	}
	if host != "192.168.4.20" {
		t.Errorf("host = %q", host)
	}
	if user != "admin" {
		t.Errorf("user = %q, want the user embedded in the target", user)
	}
	if key != "/explicit/key" {
		t.Errorf("key = %q, want the explicit key to win", key)
	}
}

func TestResolveSSHTargetWithoutConfig(t *testing.T) {
	writeSSHConfig(t, "")

	host, user, key, agent, err := ResolveSSHTarget("10.0.0.5", "ops", "/k")
	if err != nil {
		t.Fatalf("ResolveSSHTarget: %v", err)
	}
	if host != "10.0.0.5" || user != "ops" || key != "/k" || agent != "" {
		t.Errorf("got %q %q %q %q, want the arguments passed through", host, user, key, agent)
	}
}
