package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/floorline/api/internal/client"
	"github.com/floorline/api/internal/offline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type options struct {
	configPath string
	cfg        client.Config
	verbose    bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "floorctl",
		Short:         "Restaurant floor client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", os.Getenv("FLOORCTL_CONFIG"), "Client config file (YAML)")
	f.StringVar(&opts.cfg.BaseURL, "server", os.Getenv("FLOORLINE_URL"), "API base URL")
	f.StringVar(&opts.cfg.Token, "token", os.Getenv("FLOORLINE_TOKEN"), "Device token")
	f.StringVar(&opts.cfg.QueuePath, "queue", os.Getenv("FLOORLINE_QUEUE"), "Offline queue database path")
	f.DurationVar(&opts.cfg.PollInterval, "poll", 0, "Poll interval (default 4s)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log queue and feed activity to stderr")

	cmd.AddCommand(healthCmd(opts), watchCmd(opts), orderCmd(opts), requestCmd(opts), queueCmd(opts))
	return cmd
}

// load overlays the config file under any flag or environment value given.
func (o *options) load(cmd *cobra.Command) error {
	if o.configPath != "" {
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		var file client.Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse config %s: %w", o.configPath, err)
		}
		if o.cfg.BaseURL == "" {
			o.cfg.BaseURL = file.BaseURL
		}
		if o.cfg.Token == "" {
			o.cfg.Token = file.Token
		}
		if o.cfg.QueuePath == "" {
			o.cfg.QueuePath = file.QueuePath
		}
		if o.cfg.PollInterval == 0 {
			o.cfg.PollInterval = file.PollInterval
		}
		if o.cfg.HealthInterval == 0 {
			o.cfg.HealthInterval = file.HealthInterval
		}
		if o.cfg.Timeout == 0 {
			o.cfg.Timeout = file.Timeout
		}
	}
	o.cfg = o.cfg.WithDefaults()
	return nil
}

func (o *options) logger(cmd *cobra.Command) *log.Logger {
	if !o.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "floorctl: ", log.LstdFlags)
}

func (o *options) client() *client.Client {
	return client.New(o.cfg)
}

func (o *options) openQueue(cmd *cobra.Command) (*offline.Queue, error) {
	return offline.Open(o.cfg.QueuePath, o.client(), o.logger(cmd))
}
