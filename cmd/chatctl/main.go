package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sonirico/chatsdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CHATSDK"

const (
	keyBaseURL       = "base_url"
	keySocketURL     = "socket_url"
	keyTimeout       = "timeout"
	keyRetryAttempts = "retry_attempts"
	keyRetryDelay    = "retry_delay"
	keyHeartbeat     = "heartbeat_interval"
	keyLogLevel      = "log_level"
	keyToken         = "token"
	keyRefreshToken  = "refresh_token"
)

type app struct {
	v      *viper.Viper
	logger zerolog.Logger
}

func main() {
	a := &app{v: viper.New()}

	if err := a.rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command line client for the chat REST API and realtime socket",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, configFile)
		},
	}

	defaults := chatsdk.DefaultConfig()

	flags := root.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a config file (json, yaml or toml)")
	flags.String("base-url", defaults.BaseURL, "REST API base URL")
	flags.String("socket-url", defaults.SocketURL, "websocket endpoint")
	flags.Duration("timeout", defaults.Timeout, "timeout of a single HTTP attempt")
	flags.Int("retry-attempts", defaults.RetryAttempts, "retries of a failed HTTP request")
	flags.Duration("retry-delay", defaults.RetryDelay, "base delay between HTTP retries")
	flags.Duration("heartbeat-interval", 30*time.Second, "socket heartbeat interval, 0 disables it")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("token", "", "access token")
	flags.String("refresh-token", "", "refresh token")

	root.AddCommand(a.loginCmd(), a.workspacesCmd(), a.tailCmd(), a.sendCmd())

	return root
}

func (a *app) setup(cmd *cobra.Command, configFile string) error {
	for _, key := range []string{
		keyBaseURL, keySocketURL, keyTimeout, keyRetryAttempts, keyRetryDelay,
		keyHeartbeat, keyLogLevel, keyToken, keyRefreshToken,
	} {
		flag := strings.ReplaceAll(key, "_", "-")
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return errors.Wrapf(err, "cannot bind flag %s", flag)
		}
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if configFile != "" {
		a.v.SetConfigFile(configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "cannot read config")
		}
	}

	level, err := zerolog.ParseLevel(a.v.GetString(keyLogLevel))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}

	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

func (a *app) client() (*chatsdk.Client, error) {
	var cfg chatsdk.Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}

	c, err := chatsdk.New(cfg, chatsdk.WithLogger(chatsdk.NewLogger(a.logger)))
	if err != nil {
		return nil, err
	}

	c.Auth.SetTokens(a.v.GetString(keyToken), a.v.GetString(keyRefreshToken))

	return c, nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the issued tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if password == "" {
				password = os.Getenv(envPrefix + "_PASSWORD")
			}

			tokens, err := c.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			return printJSON(tokens)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password, read from "+envPrefix+"_PASSWORD when empty")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (a *app) workspacesCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List the workspaces of the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.GetWorkspaces(cmd.Context(), page, limit)
			if err != nil {
				return err
			}

			return printJSON(p)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")

	return cmd
}

func (a *app) tailCmd() *cobra.Command {
	var events []string

	cmd := &cobra.Command{
		Use:   "tail CHANNEL_ID...",
		Short: "Join channels and print the selected events pushed to them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			socket, err := c.ConnectSocket(ctx)
			if err != nil {
				return err
			}

			for _, event := range events {
				socket.On(event, printEvent(event))
			}

			for _, id := range args {
				if err := socket.Join(ctx, id, nil); err != nil {
					return err
				}
			}

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if !socket.IsConnected() {
						return errors.Wrap(chatsdk.ErrConnectionClosed, "socket lost")
					}
				}
			}
		},
	}

	cmd.Flags().StringSliceVar(&events, "events",
		[]string{chatsdk.EventNewMessage, chatsdk.EventReply, chatsdk.EventError}, "events to print")

	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var viaSocket bool

	cmd := &cobra.Command{
		Use:   "send WORKSPACE_ID CHANNEL_ID CONTENT",
		Short: "Post a message to a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, channelID, content := args[0], args[1], args[2]

			c, err := a.client()
			if err != nil {
				return err
			}
			defer c.Close()

			if !viaSocket {
				msg, err := c.SendMessage(cmd.Context(), workspaceID, channelID, chatsdk.SendMessageRequest{Content: content})
				if err != nil {
					return err
				}
				return printJSON(msg)
			}

			socket, err := c.ConnectSocket(cmd.Context())
			if err != nil {
				return err
			}
			if err := socket.Join(cmd.Context(), channelID, nil); err != nil {
				return err
			}
			return socket.SendMessage(cmd.Context(), channelID, content, "")
		},
	}

	cmd.Flags().BoolVar(&viaSocket, "socket", false, "send through the realtime socket instead of REST")

	return cmd
}

func printEvent(event string) chatsdk.Handler {
	return func(p chatsdk.Payload) error {
		bts, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "%s %s\n", event, bts)
		return err
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
