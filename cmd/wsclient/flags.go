package main

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultTimeout is the handshake budget applied when neither
	// --timeout nor a context deadline is supplied.
	DefaultTimeout = "15s"
	// DefaultMaxPayloadBytes bounds the payload this client will accept
	// from the server, protecting memory against the 64-bit length field.
	DefaultMaxPayloadBytes = 64 << 20
)

// flags defines the CLI flags to configure a connection. All of them
// except --dev and --send-text can also be set using environment
// variables and the application's configuration file.
func flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "handshake timeout, e.g. \"15s\"",
			Value: DefaultTimeout,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_TIMEOUT"),
				toml.TOML("wsclient.timeout", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "max-payload-bytes",
			Usage: "maximum frame payload this client accepts from the server, 0 = unbounded",
			Value: DefaultMaxPayloadBytes,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_MAX_PAYLOAD_BYTES"),
				toml.TOML("wsclient.max_payload_bytes", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "auto-pong",
			Usage: "answer incoming Ping frames automatically",
			Value: true,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_AUTO_PONG"),
				toml.TOML("wsclient.auto_pong", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "bearer-token-issuer",
			Usage: "issuer claim for an optional handshake bearer token",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_BEARER_TOKEN_ISSUER"),
				toml.TOML("wsclient.bearer_token_issuer", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "bearer-token-key",
			Usage: "signing key for an optional handshake bearer token",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_BEARER_TOKEN_KEY"),
				toml.TOML("wsclient.bearer_token_key", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "CSV file to append per-connection open/close/frame metrics to",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_METRICS_FILE"),
				toml.TOML("wsclient.metrics_file", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "send-text",
			Usage: "send a single text message right after connecting",
		},
	}
}
