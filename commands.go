package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"social_post_relay/blacklist"
	"social_post_relay/config"
	"social_post_relay/publisher"
)

var (
	mdPath   string
	title    string
	category string
	cover    string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a local markdown file to WordPress",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mdPath == "" || title == "" {
			return errors.New("--md and --title are required")
		}
		cfg, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		p := newPublisher(cfg)
		params := publisher.MarkdownParams{
			MarkdownPath: mdPath,
			Title:        title,
			Category:     category,
			CoverPath:    cover,
		}
		log.Printf("[cli] publishing title=%q md=%s cover=%s", params.Title, params.MarkdownPath, params.CoverPath)
		post, err := p.PublishMarkdownFile(cmd.Context(), params)
		if err != nil {
			return err
		}
		log.Printf("[cli] publish done id=%d", post.ID)
		fmt.Println(post.Link)
		return nil
	},
}

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Inspect or edit the domain blacklist",
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every blacklisted domain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store blacklist.Store) error {
			domains := store.Load(ctx).Sorted()
			for _, d := range domains {
				fmt.Println(d)
			}
			if len(domains) == 0 {
				fmt.Println("Blacklist is empty.")
			}
			return nil
		})
	},
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <domain|url>",
	Short: "Blacklist a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := blacklist.Normalize(args[0])
		if domain == "" {
			return fmt.Errorf("no domain in %q", args[0])
		}
		return withStore(func(ctx context.Context, store blacklist.Store) error {
			if err := store.Add(ctx, domain); err != nil {
				return err
			}
			fmt.Printf("Blacklisted %s\n", domain)
			return nil
		})
	},
}

var blacklistCheckCmd = &cobra.Command{
	Use:   "check <domain|url>",
	Short: "Report whether a domain is blacklisted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := blacklist.Normalize(args[0])
		return withStore(func(ctx context.Context, store blacklist.Store) error {
			if store.Contains(ctx, domain) {
				fmt.Printf("%s is blacklisted\n", domain)
			} else {
				fmt.Printf("%s is not blacklisted\n", domain)
			}
			return nil
		})
	},
}

func init() {
	publishCmd.Flags().StringVar(&mdPath, "md", "", "path to markdown file")
	publishCmd.Flags().StringVar(&title, "title", "", "post title")
	publishCmd.Flags().StringVar(&category, "category", "", "category name (created if missing)")
	publishCmd.Flags().StringVar(&cover, "cover", "", "path to cover image")

	blacklistCmd.AddCommand(blacklistListCmd, blacklistAddCmd, blacklistCheckCmd)
}

func withStore(fn func(ctx context.Context, store blacklist.Store) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := blacklist.Open(cfg.Blacklist.Backend, cfg.Blacklist.Path, log.Default())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}
