// Command chat is a terminal client for the docchat server.
package main

import (
	"fmt"
	"os"
	"time"

	"docchat-be/internal/pkg/serverutils"
	"docchat-be/pkg/chatclient"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		server           string
		token            string
		limit            int
		maxHistory       int
		requireDocuments bool
		verbose          bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your documents",
		Long: `Opens an interactive chat against a docchat server.

Replies stream in as they are generated. Press Ctrl-C while a reply is
streaming to abort it; press Ctrl-C at the prompt or send EOF to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("DOCCHAT_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("a token is required (--token or DOCCHAT_TOKEN)")
			}

			log := zap.NewNop()
			if verbose {
				var err error
				if log, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer log.Sync()
			}

			transport := chatclient.NewHTTPTransport(server, token)
			transport.Logger = log

			opts := []chatclient.Option{
				chatclient.WithContextLimit(limit),
				chatclient.WithMaxHistory(maxHistory),
				chatclient.WithLogger(log),
			}
			if requireDocuments {
				opts = append(opts, chatclient.WithDocumentGate(transport.HasDocuments))
			}

			session := chatclient.NewSession(transport, opts...)
			return newConsole(session, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:3000", "Server base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (defaults to DOCCHAT_TOKEN)")
	cmd.Flags().IntVar(&limit, "limit", 5, "Number of document chunks used as context")
	cmd.Flags().IntVar(&maxHistory, "history", 10, "Committed messages sent with each request")
	cmd.Flags().BoolVar(&requireDocuments, "require-documents", true, "Refuse to chat while no documents are uploaded")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol diagnostics to stderr")

	cmd.AddCommand(tokenCmd())
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development token with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("JWT_SECRET") == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			signed, err := serverutils.GenerateToken(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to sign for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
