package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	stdopentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	raucwebsvc "github.com/jonathanyhliang/raucweb-svc"
)

func main() {
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	a := newApp(viper.New(), logger, os.Stdout, os.Stderr)
	err := a.rootCmd().Execute()
	a.close()
	if err != nil {
		level.Error(a.logger).Log("exit", err)
		os.Exit(1)
	}
}

// app holds what the commands share: configuration, the leveled logger and
// the lazily built client.
type app struct {
	v       *viper.Viper
	base    log.Logger
	logger  log.Logger
	out     io.Writer
	errOut  io.Writer
	svc     raucwebsvc.Service
	closers []io.Closer
}

func newApp(v *viper.Viper, logger log.Logger, out, errOut io.Writer) *app {
	return &app{
		v:      v,
		base:   logger,
		logger: level.NewFilter(logger, level.AllowInfo()),
		out:    out,
		errOut: errOut,
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "raucctl",
		Short: "Client for the RAUC firmware update web service",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if a.v.GetBool("debug") {
				a.logger = level.NewFilter(a.base, level.AllowDebug())
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringP("server", "s", "localhost:8000", "address of the update web service")
	flags.StringP("amqp-url", "u", "", "AMQP URL to publish install progress to, disabled when empty")
	flags.String("amqp-exchange", raucwebsvc.DefaultExchange, "AMQP fanout exchange for install progress")
	flags.StringP("output", "o", "json", "output format for status and bundle info: json or yaml")
	flags.Bool("debug", false, "enable debug level logging")
	for _, key := range []string{"server", "amqp-url", "amqp-exchange", "output", "debug"} {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}
	a.initConfig()

	rootCmd.AddCommand(
		a.statusCmd(),
		a.uploadCmd(),
		a.infoCmd(),
		a.installCmd(),
		a.rebootCmd(),
		a.updateCmd(),
		a.configCmd(),
	)
	return rootCmd
}

func (a *app) initConfig() {
	a.v.SetEnvPrefix("raucctl")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	bindAppConfig(a.v)
}

// service builds the client on first use so that commands like "config"
// never touch the network settings.
func (a *app) service() (raucwebsvc.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	server := a.v.GetString("server")
	svc, err := raucwebsvc.NewHTTPClient(server, stdopentracing.GlobalTracer(), log.NewNopLogger())
	if err != nil {
		return nil, err
	}
	svc = raucwebsvc.LoggingMiddleware(level.Debug(a.logger))(svc)

	if url := a.v.GetString("amqp-url"); url != "" {
		pub, err := raucwebsvc.NewAMQPPublisher(url, a.v.GetString("amqp-exchange"), server)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub)
		svc = raucwebsvc.PublishingMiddleware(pub, level.Warn(a.logger))(svc)
	}

	a.svc = svc
	return svc, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			level.Warn(a.logger).Log("msg", "close", "err", err)
		}
	}
	a.closers = nil
}
