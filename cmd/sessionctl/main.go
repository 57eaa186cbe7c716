package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gourdian25/gourdiansession"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	envFiles  []string
	teamsFile string
	redisAddr string
	verbose   bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Issue, inspect, refresh and revoke gourdian sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "Optional .env files loaded before GOURDIAN_SESSION_* variables")
	cmd.PersistentFlags().StringVar(&opts.teamsFile, "teams-file", "", "JSON file mapping group ids to team access")
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address of the revocation denylist")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newIssueCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newRefreshCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newRevokeCommand(opts))
	return cmd
}

func newIssueCommand(opts *globalOptions) *cobra.Command {
	var (
		user   gourdiansession.UserIdentity
		groups []string
		device string
		ip     string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Create a session and print its token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := opts.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			tokens, err := manager.CreateSession(cmd.Context(), gourdiansession.CreateSessionInput{
				User:       user,
				Groups:     groups,
				DeviceInfo: device,
				IPAddress:  ip,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tokens)
		},
	}

	cmd.Flags().StringVar(&user.UserID, "user-id", "", "User identifier")
	cmd.Flags().StringVar(&user.Email, "email", "", "User email")
	cmd.Flags().StringVar(&user.FirstName, "first-name", "", "User first name")
	cmd.Flags().StringVar(&user.LastName, "last-name", "", "User last name")
	cmd.Flags().StringVar(&user.FullName, "full-name", "", "User display name")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Upstream group id (repeatable)")
	cmd.Flags().StringVar(&device, "device", "", "Device description")
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP address")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newVerifyCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <access-token>",
		Short: "Verify an access token and print the decrypted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := opts.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			payload, err := manager.VerifySession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payload)
		},
	}
}

func newRefreshCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <refresh-token>",
		Short: "Exchange a refresh token for a new access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := opts.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := manager.RefreshSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*gourdiansession.AccessTokenResponse
				Session *gourdiansession.SessionPayload `json:"session"`
			}{resp, resp.Payload})
		},
	}
}

func newInspectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <refresh-token>",
		Short: "Verify a refresh token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := opts.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			claims, err := manager.InspectRefreshToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}
}

func newRevokeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <refresh-token>",
		Short: "Add the session of a refresh token to the Redis denylist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.redisAddr == "" {
				return fmt.Errorf("revoke requires --redis-addr: %w", gourdiansession.ErrRevocationDisabled)
			}
			manager, cleanup, err := opts.manager(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := manager.RevokeSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
}

// manager builds a SessionManager from the environment and the global flags.
func (o *globalOptions) manager(ctx context.Context) (*gourdiansession.SessionManager, func(), error) {
	level := zerolog.InfoLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := log.Logger.Level(level)

	config, err := gourdiansession.LoadConfigFromEnv(ctx, o.envFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var resolver gourdiansession.TeamAccessResolver = gourdiansession.NoopTeamAccessResolver{}
	if o.teamsFile != "" {
		static, err := loadTeamsFile(o.teamsFile)
		if err != nil {
			return nil, nil, err
		}
		resolver = static
	}

	options := []gourdiansession.Option{
		gourdiansession.WithLogger(logger),
		gourdiansession.WithTeamAccessResolver(resolver),
	}

	cleanup := func() {}
	if o.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		store, err := gourdiansession.NewRedisRevocationStore(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("revocation store: %w", err)
		}
		options = append(options, gourdiansession.WithRevocationStore(store))
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}
	}

	manager, err := gourdiansession.NewGourdianSessionManager(config, options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return manager, cleanup, nil
}

// loadTeamsFile reads a {"group": [{"teamId": ..., "teamName": ..., "role": ...}]} table.
func loadTeamsFile(path string) (gourdiansession.StaticTeamAccessResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read teams file: %w", err)
	}
	table := gourdiansession.StaticTeamAccessResolver{}
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse teams file: %w", err)
	}
	return table, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
