// snackctl is the operator CLI: it creates and revokes asset shares
// and tails a site's activity feed against the shared store.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/staticsnack/server/internal/config"
	"github.com/staticsnack/server/internal/pipeline"
	"github.com/staticsnack/server/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "snackctl",
		Short: "Operate StaticSnack sites, shares and activity",
	}

	root.AddCommand(newCreateShareCmd())
	root.AddCommand(newRevokeShareCmd())
	root.AddCommand(newActivityCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openService connects to the configured store. The resolver is nil:
// no snackctl command talks to GitHub.
func openService() (*pipeline.Service, error) {
	_ = godotenv.Load(".env")
	cfg, err := config.Load(os.Getenv("SNACK_CONFIG"))
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend != config.StorageBackendRedis {
		return nil, fmt.Errorf("snackctl needs the redis backend; the memory store is process-local")
	}
	st, err := store.NewRedisStore(cfg.Storage.Redis.StoreConfig())
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(st, nil), nil
}

func newCreateShareCmd() *cobra.Command {
	var req pipeline.CreateShareRequest
	var siteID string
	cmd := &cobra.Command{
		Use:   "create-share",
		Short: "Create a guest upload share for a site directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			req.Actor = "snackctl"
			created, err := svc.CreateShare(cmd.Context(), siteID, req)
			if err != nil {
				return err
			}
			fmt.Printf("share id:   %s\n", created.Share.ID)
			fmt.Printf("token:      %s\n", created.Token)
			fmt.Printf("expires at: %s\n", created.Share.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Println("The token is shown only once; store it now.")
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "", "site id (required)")
	cmd.Flags().StringVar(&req.TargetDir, "dir", "", "target directory within the repository")
	cmd.Flags().IntVar(&req.MaxUploads, "max-uploads", 10, "maximum accepted uploads")
	cmd.Flags().DurationVar(&req.TTL, "ttl", 0, "share lifetime (default 24h)")
	cmd.Flags().StringSliceVar(&req.AllowedExts, "ext", nil, "allowed file extensions (repeatable)")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newRevokeShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-share <share-id>",
		Short: "Revoke a guest upload share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			if err := svc.RevokeShare(cmd.Context(), args[0], "snackctl"); err != nil {
				return err
			}
			fmt.Printf("share %s revoked\n", args[0])
			return nil
		},
	}
}

func newActivityCmd() *cobra.Command {
	var siteID string
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show a site's most recent activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			entries, err := svc.Activity(cmd.Context(), siteID, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				actor := e.UserID
				if actor == "" {
					actor = "guest"
				}
				fmt.Printf("%s  %-14s %-10s %v\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, actor, e.Metadata["commit_sha"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "", "site id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}
