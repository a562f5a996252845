package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"crawlfleet/pkg/config"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
)

// runFunc runs a command to completion and returns its output
type runFunc func(ctx context.Context, bin string, args ...string) (stdout, stderr string, err error)

// startFunc starts a detached command writing combined output to log
type startFunc func(bin string, args []string, log *os.File) error

// DockerRuntime drives workers through the docker CLI.
type DockerRuntime struct {
	bin   string
	run   runFunc
	start startFunc
}

// NewDockerRuntime creates a docker CLI runtime
func NewDockerRuntime(cfg *config.Config) (interfaces.Runtime, error) {
	bin := cfg.Runtime.DockerBin
	if bin == "" {
		bin = "docker"
	}
	return &DockerRuntime{
		bin:   bin,
		run:   runCommand,
		start: startDetached,
	}, nil
}

// Launch runs `docker run` for the worker without waiting for it to exit.
func (p *DockerRuntime) Launch(ctx context.Context, req *interfaces.LaunchRequest) error {
	args := RunArgs(req)
	logger.DebugCtx(ctx, "Executing: %s %s", p.bin, strings.Join(args, " "))

	if err := os.MkdirAll(filepath.Dir(req.LogPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open worker log %s: %w", req.LogPath, err)
	}

	if err := p.start(p.bin, args, logFile); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to launch worker %s: %w", req.Name, err)
	}
	return nil
}

// RunArgs builds the `docker run` argument list for a launch request
func RunArgs(req *interfaces.LaunchRequest) []string {
	args := []string{"run", "--name", req.Name}
	if req.Volume != "" {
		args = append(args, "-v", req.Volume+":"+constants.PersistMountPath)
	}
	args = append(args, req.Image, constants.PipelineEntrypoint)
	return append(args, req.Args...)
}

// ListAlive lists running container names via `docker container ps`
func (p *DockerRuntime) ListAlive(ctx context.Context) (map[string]struct{}, error) {
	stdout, stderr, err := p.exec(ctx, "container", "ps", "--format", "{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w (%s)", err, strings.TrimSpace(stderr))
	}

	alive := make(map[string]struct{})
	for _, line := range strings.Split(stdout, "\n") {
		name := strings.TrimSpace(line)
		if name != "" {
			alive[name] = struct{}{}
		}
	}
	return alive, nil
}

// CopyArtifacts runs `docker cp name:srcDir destDir`
func (p *DockerRuntime) CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error {
	_, stderr, err := p.exec(ctx, "cp", name+":"+srcDir, destDir)
	if err != nil {
		return fmt.Errorf("failed to copy %s from %s: %w (%s)", srcDir, name, err, strings.TrimSpace(stderr))
	}
	return nil
}

// Stop runs `docker stop`
func (p *DockerRuntime) Stop(ctx context.Context, name string) error {
	_, stderr, err := p.exec(ctx, "stop", name)
	if err != nil {
		return fmt.Errorf("failed to stop %s: %w (%s)", name, err, strings.TrimSpace(stderr))
	}
	return nil
}

// Remove runs `docker rm`
func (p *DockerRuntime) Remove(ctx context.Context, name string) error {
	_, stderr, err := p.exec(ctx, "rm", name)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w (%s)", name, err, strings.TrimSpace(stderr))
	}
	return nil
}

func (p *DockerRuntime) exec(ctx context.Context, args ...string) (string, string, error) {
	logger.DebugCtx(ctx, "Executing: %s %s", p.bin, strings.Join(args, " "))
	stdout, stderr, err := p.run(ctx, p.bin, args...)
	logger.DebugCtx(ctx, "stdout: %s", stdout)
	logger.DebugCtx(ctx, "stderr: %s", stderr)
	return stdout, stderr, err
}

func runCommand(ctx context.Context, bin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func startDetached(bin string, args []string, log *os.File) error {
	cmd := exec.Command(bin, args...)
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the client process and release the log handle once it exits.
	go func() {
		_ = cmd.Wait()
		log.Close()
	}()
	return nil
}
