package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/batch"
	"github.com/tinoosan/bilibatch/internal/config"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/fetch"
	"github.com/tinoosan/bilibatch/internal/logging"
	"github.com/tinoosan/bilibatch/internal/notify"
	"github.com/tinoosan/bilibatch/internal/service"
)

type commandContext struct {
	configFlag *string
	levelFlag  *string

	once      sync.Once
	config    *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	err       error
}

func newCommandContext(configFlag, levelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, levelFlag: levelFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.err = err
			return
		}
		if c.levelFlag != nil && *c.levelFlag != "" {
			cfg.Log.Level = *c.levelFlag
		}
		lg, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger, c.logCloser = cfg, lg, closer
	})
	return c.config, c.err
}

func (c *commandContext) close() error {
	if c.logCloser == nil {
		return nil
	}
	return c.logCloser.Close()
}

func (c *commandContext) aria2Client() (*aria2.Client, error) {
	return aria2.NewClient(c.config.Aria2.RPCURL, c.config.Aria2.Secret, c.config.Aria2Timeout())
}

// batchService builds the service. A nil sink leaves dispatch unavailable.
func (c *commandContext) batchService(sink batch.RPCSink) service.Batch {
	cfg := c.config
	fetcher := fetch.NewClient(fetch.Options{Cookie: cfg.Cookie, Interval: cfg.RateInterval()})
	return service.NewBatch(fetcher, sink, notify.NewLog(c.logger), c.logger, service.Options{
		Quality:       data.Quality(cfg.Quality),
		APIBase:       cfg.APIBase,
		ProbeAttempts: cfg.ProbeAttempts,
		ProbeInterval: cfg.ProbeInterval(),
		RPC: batch.RPCOptions{
			SecretKey: cfg.Aria2.Secret,
			Dir:       cfg.Aria2.Dir,
			Collision: batch.CollisionPolicy(strings.ToLower(cfg.Aria2.OnCollision)),
		},
	})
}
