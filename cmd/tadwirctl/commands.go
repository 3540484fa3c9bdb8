package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tadwir/internal/bootstrap"
	"tadwir/internal/domain"
	"tadwir/internal/usecase"
)

func newScanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <image>",
		Short: "Ask for advice about a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, mimeType, err := readImage(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, services bootstrap.Services) error {
				record, err := services.Advisor.AnalyzeImage(ctx, data, mimeType)
				if err != nil {
					return errors.New(domain.UserMessage(err))
				}
				printRecord(c.out, record)
				return nil
			})
		},
	}
}

func newAskCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <item>",
		Short: "Ask for advice about a named item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return c.run(cmd, func(ctx context.Context, services bootstrap.Services) error {
				record, err := services.Advisor.Lookup(ctx, query, domain.LookupSourceLibrary)
				if err != nil {
					return errors.New(domain.UserMessage(err))
				}
				printRecord(c.out, record)
				return nil
			})
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, services bootstrap.Services) error {
				stats := services.Stats.Snapshot(ctx)
				fmt.Fprintf(c.out, "items scanned: %d\n", stats.ItemsScanned)
				fmt.Fprintf(c.out, "searches made: %d\n", stats.SearchesMade)
				fmt.Fprintf(c.out, "achievements: %d/%d\n", len(stats.Unlocked), len(usecase.Catalog()))
				return nil
			})
		},
	}
}

func newAchievementsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements",
		Short: "List achievements and their unlock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, services bootstrap.Services) error {
				for _, status := range services.Stats.Achievements(ctx) {
					mark := "[ ]"
					if status.Unlocked {
						mark = "[x]"
					}
					fmt.Fprintf(c.out, "%s %s %s - %s\n", mark, status.Icon, status.Title, status.Description)
				}
				return nil
			})
		},
	}
}

func printRecord(out io.Writer, record domain.AdviceRecord) {
	fmt.Fprintf(out, "%s (%s)\n", record.ItemName, record.Category)
	fmt.Fprintf(out, "❌ %s\n", record.NotToDo)
	fmt.Fprintf(out, "✅ %s\n", record.ToDo)
	fmt.Fprintf(out, "💡 %s\n", record.Alternatives)
	fmt.Fprintf(out, "🛒 %s\n", record.WhereToBuy)
	fmt.Fprintf(out, "✨ %s\n", record.Motivation)
}

// readImage loads a photo and picks its MIME type from the extension, falling
// back to content sniffing.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("read image: %s is empty", path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("read image: %s is not an image (%s)", path, mimeType)
	}
	return data, mimeType, nil
}
