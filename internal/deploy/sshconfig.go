package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// hostEntry is the subset of an ssh_config Host block the deployer consults.
type hostEntry struct {
	hostName      string
	user          string
	identityFile  string
	identityAgent string
}

// ResolveSSHTarget turns a target flag value into connection details,
// consulting ~/.ssh/config for the named host. A user embedded in the target
// ("user@host") wins over the user argument; explicit user and key arguments
// win over config values. Returns host, user, key path, and identity agent.
func ResolveSSHTarget(target, user, keyPath string) (host, finalUser, finalKey, agent string, err error) {
	host = target
	if at := strings.IndexByte(target, '@'); at >= 0 {
		user = target[:at]
		host = target[at+1:]
	}

	entry, err := lookupHost(host)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to parse SSH config: %w", err)
	}
	if entry == nil {
		return host, user, keyPath, "", nil
	}

	if entry.hostName != "" {
		host = entry.hostName
	}
	if user == "" {
		user = entry.user
	}
	if keyPath == "" {
		keyPath = entry.identityFile
	}
	return host, user, keyPath, entry.identityAgent, nil
}

// lookupHost reads ~/.ssh/config and returns the entry for host, or nil when
// no config file exists or no block names the host.
func lookupHost(host string) (*hostEntry, error) {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home == "" {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(home, ".ssh", "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseSSHConfig(f, host, home)
}

// parseSSHConfig scans an ssh_config stream for the Host block that matches
// host exactly (no wildcard patterns) and collects the keywords the deployer
// cares about. ~/ in path values expands against home.
func parseSSHConfig(r io.Reader, host, home string) (*hostEntry, error) {
	var entry *hostEntry
	matching := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		keyword := strings.ToLower(fields[0])
		value := strings.Join(fields[1:], " ")

		if keyword == "host" {
			if matching {
				// Left the matching block; later blocks cannot add to it.
				break
			}
			matching = fields[1] == host
			if matching {
				entry = &hostEntry{}
			}
			continue
		}
		if !matching {
			continue
		}

		switch keyword {
		case "hostname":
			entry.hostName = value
		case "user":
			entry.user = value
		case "identityfile":
			entry.identityFile = expandHome(value, home)
		case "identityagent":
			entry.identityAgent = expandHome(strings.Trim(value, `"`), home)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SSH config: %w", err)
	}
	return entry, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") && home != "" {
		return filepath.Join(home, path[2:])
	}
	return path
}
