//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Redis container constants.
const (
	redisImage     = "redis:7-alpine"
	redisContainer = "gomarket-redis-test"
	redisPort      = "16379"
	redisAddr      = "localhost:" + redisPort
	redisAddrEnv   = "GOMARKET_REDIS_ADDR"
)

// containerRuntime returns "podman" or "docker" if a working runtime
// is available, or "" if neither is usable. It checks both that the
// binary exists on PATH and that it can connect to its daemon/machine.
func containerRuntime() string {
	for _, name := range []string{"podman", "docker"} {
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		if exec.Command(name, "info").Run() != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %s found on PATH but not usable (is the daemon/machine running?)\n", name)
			continue
		}
		return name
	}
	return ""
}

// startRedis runs a detached redis container and waits until it answers
// PING.
func startRedis(rt string) error {
	stopRedis(rt)

	fmt.Fprintln(os.Stderr, "Starting redis container...")
	cmd := exec.Command(rt, "run", "-d", "--rm",
		"--name", redisContainer,
		"-p", redisPort+":6379",
		redisImage)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return err
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		out, err := exec.Command(rt, "exec", redisContainer, "redis-cli", "ping").Output()
		if err == nil && string(out) == "PONG\n" {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("redis container did not become ready")
}

// stopRedis removes the redis container. Errors are ignored because
// the container may not exist.
func stopRedis(rt string) {
	_ = exec.Command(rt, "rm", "-f", redisContainer).Run()
}
