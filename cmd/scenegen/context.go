package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"scenegen/internal/config"
	"scenegen/internal/ipc"
)

// skipConfigAnnotation marks commands (and their children) that must run
// without a loadable config, such as `config init`.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the persistent flags and the lazily loaded config
// shared by every subcommand.
type commandContext struct {
	socket     string
	configFile string

	load   sync.Once
	cfg    *config.Config
	cfgErr error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.cfgErr = err
			return
		}
		c.cfg = cfg
	})
	return c.cfg, c.cfgErr
}

func (c *commandContext) configPath() string { return strings.TrimSpace(c.configFile) }

// configValue is the loaded config, or nil when loading failed.
func (c *commandContext) configValue() *config.Config {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// socketPath resolves --socket, then the configured state directory, then
// the default state directory.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	if path, err := config.ExpandPath("~/.local/share/scenegen/scenegen.sock"); err == nil {
		return path
	}
	return filepath.Join(os.TempDir(), "scenegen.sock")
}

// withClient dials the daemon for the duration of fn.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialError(socket, err)
	}
	defer client.Close()
	return fn(client)
}

func dialError(socket string, err error) error {
	var hint string
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		hint = "not found; start the daemon with `scenegen daemon start`"
	case errors.Is(err, syscall.ECONNREFUSED):
		hint = "refused the connection; verify the daemon is running"
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
	return fmt.Errorf("connect to daemon: socket %s %s", socket, hint)
}

func skipsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
