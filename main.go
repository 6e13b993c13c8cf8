package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/app-sre/zabbix-sender/sender"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	logLevel  string
	logFormat string

	configFile    string
	serverAddress string
	serverPort    int
	destination   string
	itemHost      string
	itemKey       string
	itemValue     string
	itemClock     int64
	sendTimeout   time.Duration

	serverListenAddress  string
	serverListenPort     int64
	serverIPWhitelist    []string
	serverReadTimeout    time.Duration
	metricsListenAddress string
	metricsListenPort    int64
	metricsNamespace     string
)

// defaultIPWhitelist allows every IPv4 and IPv6 peer.
var defaultIPWhitelist = []string{"0.0.0.0/0", "::/0"}

func newApp() *cli.App {
	return &cli.App{
		Name:  "zabbix-sender",
		Usage: "push values to a Zabbix server over the trapper protocol",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log.level",
				Value:       "info",
				Usage:       "Only log messages with the given severity or above. One of: [debug, info, warn, error]",
				EnvVars:     []string{"ZS_LOG_LEVEL"},
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log.format",
				Value:       "text",
				Usage:       "Output format of log messages. One of: [text, json]",
				EnvVars:     []string{"ZS_LOG_FORMAT"},
				Destination: &logFormat,
			},
		},
		Before: func(c *cli.Context) error {
			return setupLogging(logLevel, logFormat)
		},
		Commands: []*cli.Command{
			sendCommand(),
			serveCommand(),
		},
	}
}

func setupLogging(level, format string) error {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("invalid log level requested: %s", level)
	}

	switch strings.ToLower(format) {
	case "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format requested: %s", format)
	}
	return nil
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send a single value and print the server summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "YAML file with the server and named destinations",
				EnvVars:     []string{"ZABBIX_CONFIG"},
				Destination: &configFile,
			},
			&cli.StringFlag{
				Name:        "server",
				Usage:       "Zabbix server or proxy address, overrides the config file",
				EnvVars:     []string{"ZABBIX_SERVER"},
				Destination: &serverAddress,
			},
			&cli.IntFlag{
				Name:        "port",
				Usage:       "Zabbix trapper port, overrides the config file",
				EnvVars:     []string{"ZABBIX_PORT"},
				Destination: &serverPort,
			},
			&cli.StringFlag{
				Name:        "destination",
				Usage:       "named destination from the config file",
				Destination: &destination,
			},
			&cli.StringFlag{
				Name:        "host",
				Usage:       "host name of the item, overrides the destination",
				Destination: &itemHost,
			},
			&cli.StringFlag{
				Name:        "key",
				Usage:       "item key, overrides the destination",
				Destination: &itemKey,
			},
			&cli.StringFlag{
				Name:        "value",
				Usage:       "item value",
				Required:    true,
				Destination: &itemValue,
			},
			&cli.Int64Flag{
				Name:        "clock",
				Usage:       "unix timestamp of the value, defaults to now",
				Destination: &itemClock,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Value:       10 * time.Second,
				Usage:       "deadline for the whole exchange",
				Destination: &sendTimeout,
			},
		},
		Action: func(c *cli.Context) error {
			return runSend(c.Context, c.App.Writer)
		},
	}
}

func loadSendConfig() (*sender.Config, error) {
	cfg := &sender.Config{Port: sender.DefaultPort}
	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("could not read file: %v", err)
		}
		if cfg, err = sender.ParseConfig(raw); err != nil {
			return nil, err
		}
	}

	if serverAddress != "" {
		cfg.Server = serverAddress
	}
	if serverPort != 0 {
		cfg.Port = serverPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSend(ctx context.Context, out io.Writer) error {
	cfg, err := loadSendConfig()
	if err != nil {
		return err
	}

	sample := sender.NewSample()
	if destination != "" {
		if sample, err = cfg.Sample(destination); err != nil {
			return err
		}
	}
	if itemHost != "" {
		sample.UsingHost(itemHost)
	}
	if itemKey != "" {
		sample.UsingKey(itemKey)
	}
	sample.UsingValue(itemValue)
	if itemClock != 0 {
		sample.UsingClock(time.Unix(itemClock, 0))
	}

	client, err := sender.NewClientFromConfig(cfg)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	result, err := client.Add(sample).Send(ctx)
	if err != nil {
		return err
	}
	if result.Outcome == sender.NotSent {
		fmt.Fprintln(out, "sender disabled, nothing sent")
		return nil
	}

	summary, err := json.Marshal(result.Response.Summary())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(summary))
	return nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a loopback trapper server that exposes received items as metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server.listen-address",
				Value:       "0.0.0.0",
				Usage:       "IP for server to listen on",
				EnvVars:     []string{"ZS_SERVER_LISTEN_ADDRESS"},
				Destination: &serverListenAddress,
			},
			&cli.Int64Flag{
				Name:        "server.listen-port",
				Value:       sender.DefaultPort,
				Usage:       "port for server to listen on",
				EnvVars:     []string{"ZS_SERVER_LISTEN_PORT"},
				Destination: &serverListenPort,
			},
			&cli.StringSliceFlag{
				Name:        "server.ip-whitelist",
				Value:       cli.NewStringSlice(defaultIPWhitelist...),
				Usage:       "IPs that are allowed access",
				EnvVars:     []string{"ZS_SERVER_IP_WHITELIST"},
				DefaultText: strings.Join(defaultIPWhitelist, ","),
			},
			&cli.DurationFlag{
				Name:        "server.read-timeout",
				Value:       defaultReadTimeout,
				Usage:       "how long to wait for a request on an accepted connection",
				EnvVars:     []string{"ZS_SERVER_READ_TIMEOUT"},
				Destination: &serverReadTimeout,
			},
			&cli.StringFlag{
				Name:        "metrics.listen-address",
				Value:       "0.0.0.0",
				Usage:       "IP for metrics to listen on",
				EnvVars:     []string{"ZS_METRICS_LISTEN_ADDRESS"},
				Destination: &metricsListenAddress,
			},
			&cli.Int64Flag{
				Name:        "metrics.listen-port",
				Value:       2112,
				Usage:       "port for metrics to listen on",
				EnvVars:     []string{"ZS_METRICS_LISTEN_PORT"},
				Destination: &metricsListenPort,
			},
			&cli.StringFlag{
				Name:        "metrics.namespace",
				Value:       "zabbix_sender",
				Usage:       "namespace to expose the metrics under",
				EnvVars:     []string{"ZS_METRICS_NAMESPACE"},
				Destination: &metricsNamespace,
			},
		},
		Before: func(c *cli.Context) error {
			// StringSliceFlag doesn't support Destination https://github.com/urfave/cli/issues/603
			if len(c.StringSlice("server.ip-whitelist")) > 0 {
				serverIPWhitelist = c.StringSlice("server.ip-whitelist")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			ipWhitelist, cidrWhitelist, err := parseWhitelist(serverIPWhitelist)
			if err != nil {
				return err
			}

			s, err := NewZServer(&ZServerConfig{
				ServerListenAddress:  serverListenAddress,
				ServerListenPort:     serverListenPort,
				ServerIPWhitelist:    ipWhitelist,
				ServerCIDRWhitelist:  cidrWhitelist,
				ServerReadTimeout:    serverReadTimeout,
				MetricsListenAddress: metricsListenAddress,
				MetricsListenPort:    metricsListenPort,
				MetricsNamespace:     metricsNamespace,
			})
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}

func parseWhitelist(args []string) ([]*net.IP, []*net.IPNet, error) {
	var cidrWhitelist []*net.IPNet
	var ipWhitelist []*net.IP
	for _, iparg := range args {
		ips := strings.Split(iparg, ",")
		for _, ip := range ips {
			ip = strings.TrimSpace(ip)
			if strings.Contains(ip, "/") {
				_, ipnet, err := net.ParseCIDR(ip)
				if err != nil {
					return nil, nil, fmt.Errorf("could not parse CIDR: %v", err)
				}
				cidrWhitelist = append(cidrWhitelist, ipnet)
			} else {
				if parsedIP := net.ParseIP(ip); parsedIP != nil {
					ipWhitelist = append(ipWhitelist, &parsedIP)
				} else {
					return nil, nil, fmt.Errorf("could not parse IP: %s", ip)
				}
			}
		}
	}
	return ipWhitelist, cidrWhitelist, nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
