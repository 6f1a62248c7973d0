package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/wsbind/pkg/config"
	"github.com/go-go-golems/wsbind/pkg/push"
	"github.com/go-go-golems/wsbind/pkg/redisstream"
	"github.com/go-go-golems/wsbind/pkg/session"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			srv, err := NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions in the configured store",
	}

	var data session.Data
	var attrs []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Sessions.Store == config.StoreMemory {
				logger.Warn().Msg("sessions.store is memory, the session will not outlive this command")
			}
			data.Attributes, err = parseAttributes(attrs)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			sessions := session.NewSessions(session.SessionsOptions{Store: store, Logger: logger})
			defer func() { _ = sessions.Close() }()

			s, err := sessions.Create(cmd.Context(), data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Token())
			return err
		},
	}
	create.Flags().StringVar(&data.UserID, "user", "", "User id")
	create.Flags().StringVar(&data.Role, "role", "", "Role")
	create.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute key=value (repeatable)")
	_ = create.MarkFlagRequired("user")

	remove := &cobra.Command{
		Use:   "delete TOKEN",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			sessions := session.NewSessions(session.SessionsOptions{Store: store, Logger: logger})
			defer func() { _ = sessions.Close() }()
			return sessions.Remove(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(create, remove)
	return cmd
}

func newPushCmd() *cobra.Command {
	var token, payload string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish a payload for the connection bound to a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return errors.New("push needs redis.enabled, the in-process bus is not reachable from here")
			}
			var v any
			if err := json.Unmarshal([]byte(payload), &v); err != nil {
				return errors.Wrap(err, "payload is not valid json")
			}
			bus, err := redisstream.BuildBus(cfg.Redis, nil, logger)
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close() }()
			return push.Publish(bus.Publisher, cfg.Push.Topic, token, v)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Session token")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return errors.Wrap(err, "encode config")
			}
			return enc.Close()
		},
	}
}

func parseAttributes(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	ret := map[string]string{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errors.Errorf("invalid attribute %q, want key=value", kv)
		}
		ret[strings.TrimSpace(k)] = v
	}
	return ret, nil
}
