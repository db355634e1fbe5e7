package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kestrel-robotics/gatekeeper/internal/deploy"
	"github.com/kestrel-robotics/gatekeeper/internal/version"
)

var debugMode bool

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "install":
		handleInstall(args)
	case "status":
		handleStatus(args)
	case "restart":
		handleRestart(args)
	case "logs":
		handleLogs(args)
	case "rollback":
		handleRollback(args)
	case "version":
		fmt.Printf("gatekeeper-deploy version %s (%s)\n", version.Version, version.GitSHA)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gatekeeper-deploy - Deployment manager for the gatekeeper service

Usage: gatekeeper-deploy <command> [options]

Commands:
  install    Install the gatekeeper binary and systemd unit on a target host
  status     Show service status on the target host
  restart    Restart the service on the target host
  logs       Tail recent service logs on the target host
  rollback   Restore the previously installed binary and restart
  version    Print version information
  help       Show this help

Common options:
  -target    Target host (hostname, user@host, or "localhost")
  -user      SSH user (overrides ~/.ssh/config)
  -key       SSH identity file (overrides ~/.ssh/config)
  -dry-run   Print actions without executing them
  -debug     Enable debug logging`)
}

type targetFlags struct {
	target string
	user   string
	key    string
	dryRun bool
}

func registerTargetFlags(fs *flag.FlagSet) *targetFlags {
	tf := &targetFlags{}
	fs.StringVar(&tf.target, "target", "localhost", "target host")
	fs.StringVar(&tf.user, "user", "", "SSH user")
	fs.StringVar(&tf.key, "key", "", "SSH identity file")
	fs.BoolVar(&tf.dryRun, "dry-run", false, "print actions without executing")
	fs.BoolVar(&debugMode, "debug", false, "enable debug logging")
	return tf
}

// newExecutor resolves SSH details from ~/.ssh/config and builds an executor.
func newExecutor(tf *targetFlags) (*deploy.Executor, error) {
	host, user, key, agent, err := deploy.ResolveSSHTarget(tf.target, tf.user, tf.key)
	if err != nil {
		return nil, err
	}
	exec := deploy.NewExecutor(host, user, key, agent, tf.dryRun)
	if debugMode {
		exec.SetLogger(stderrLogger{})
	}
	return exec, nil
}

type stderrLogger struct{}

func (stderrLogger) Debugf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func handleInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	tf := registerTargetFlags(fs)
	binary := fs.String("binary", "gatekeeper", "path to the gatekeeper binary to install")
	fs.Parse(args)

	exec, err := newExecutor(tf)
	if err != nil {
		fatalf("install: %v", err)
	}

	inst := &installer{exec: exec, binaryPath: *binary}
	if err := inst.run(); err != nil {
		fatalf("install failed: %v", err)
	}
	fmt.Println("install complete")
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	tf := registerTargetFlags(fs)
	fs.Parse(args)

	exec, err := newExecutor(tf)
	if err != nil {
		fatalf("status: %v", err)
	}

	out, _ := exec.RunSudo(fmt.Sprintf("systemctl status %s --no-pager", serviceName))
	fmt.Print(out)
}

func handleRestart(args []string) {
	fs := flag.NewFlagSet("restart", flag.ExitOnError)
	tf := registerTargetFlags(fs)
	fs.Parse(args)

	exec, err := newExecutor(tf)
	if err != nil {
		fatalf("restart: %v", err)
	}

	if out, err := exec.RunSudo(fmt.Sprintf("systemctl restart %s", serviceName)); err != nil {
		fatalf("restart failed: %v\n%s", err, out)
	}
	fmt.Println("service restarted")
}

func handleLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	tf := registerTargetFlags(fs)
	lines := fs.Int("n", 50, "number of log lines")
	fs.Parse(args)

	exec, err := newExecutor(tf)
	if err != nil {
		fatalf("logs: %v", err)
	}

	out, err := exec.RunSudo(fmt.Sprintf("journalctl -u %s -n %d --no-pager", serviceName, *lines))
	if err != nil {
		fatalf("logs failed: %v\n%s", err, out)
	}
	fmt.Print(out)
}

func handleRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	tf := registerTargetFlags(fs)
	fs.Parse(args)

	exec, err := newExecutor(tf)
	if err != nil {
		fatalf("rollback: %v", err)
	}

	if err := rollback(exec); err != nil {
		fatalf("rollback failed: %v", err)
	}
	fmt.Println("rollback complete")
}
