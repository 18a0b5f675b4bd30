package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/glimte/hostbridge/transport"
)

// hostProcess is a child process speaking the bridge protocol on stdio
type hostProcess struct {
	cmd  *exec.Cmd
	host *transport.StreamHost
}

func startHostProcess(ctx context.Context, command string, logger *slog.Logger) (*hostProcess, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("--host-cmd is required")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open host stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start host %q: %w", parts[0], err)
	}
	logger.Debug("host process started", "command", command, "pid", cmd.Process.Pid)

	// reading starts with host.Start once the caller's hook is in place
	host := transport.NewStreamHost(stdout, stdin, transport.WithStreamLogger(logger))

	return &hostProcess{cmd: cmd, host: host}, nil
}

// stop closes the host's stdin and waits for it to exit
func (p *hostProcess) stop() error {
	_ = p.host.Close()
	return p.cmd.Wait()
}
