//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs all tests.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Race runs all tests with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Cover runs all tests and writes coverage to bin/cover.out.
func (Test) Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	out := binaryDir + "/cover.out"
	if err := sh.RunV(binGo, "test", "-coverprofile="+out, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+out)
}

// Redis starts a throwaway redis container and runs the redis backend
// tests against it.
func (Test) Redis() error {
	rt := containerRuntime()
	if rt == "" {
		return fmt.Errorf("no container runtime found (tried podman, docker)")
	}

	if err := startRedis(rt); err != nil {
		return fmt.Errorf("start redis: %w", err)
	}
	defer stopRedis(rt)

	env := map[string]string{redisAddrEnv: redisAddr}
	return sh.RunWithV(env, binGo, "test", "-v", "-count=1", "./internal/redis/...")
}
