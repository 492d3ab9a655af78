package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"taskguard/internal/config"
	"taskguard/internal/daemonctl"
	"taskguard/internal/faults"
	"taskguard/internal/history"
	"taskguard/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	hostFlag     *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag, hostFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		hostFlag:     hostFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = faults.Wrap(faults.ErrConfiguration, "", "", "load config", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = faults.Wrap(faults.ErrConfiguration, "", "", "prepare directories", err)
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) host() string {
	return flagValue(c.hostFlag)
}

func (c *commandContext) logLevel() string {
	return flagValue(c.logLevelFlag)
}

// service builds the operator service. The history store is opened when
// available; closeFn must be called when the command finishes.
func (c *commandContext) service() (svc *daemonctl.Service, closeFn func(), err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logging.Level
	if lvl := c.logLevel(); lvl != "" {
		level = lvl
	}
	logger, err := logging.New(logging.Options{
		Name:    "taskguard",
		Level:   level,
		Format:  cfg.Logging.Format,
		Console: os.Stderr,
	})
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "", "", "init logger", err)
	}
	deps := daemonctl.Deps{Logger: logger}
	closeFn = func() {}
	if store, openErr := history.Open(cfg.Paths.HistoryDB); openErr != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(openErr),
			logging.String(logging.FieldImpact, "this command's events are only logged"))
	} else {
		deps.Events = store
		closeFn = func() { _ = store.Close() }
	}
	return daemonctl.NewService(cfg, deps), closeFn, nil
}

func flagValue(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func hostLabel(host string) string {
	if host == "" {
		return "local"
	}
	return host
}
