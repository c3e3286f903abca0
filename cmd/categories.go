package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/config"
)

func newCategoriesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Rebuilds the category file from the site menu",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				output = appInstance.Config.CategoriesFile
			}
			categories, err := discoverCategories(cmd.Context(), appInstance.Config, appInstance.Logger, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d categories to %s\n", len(categories), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (defaults to categories_file)")
	return cmd
}

// discoverCategories reads the catalog menu and writes it to path.
func discoverCategories(ctx context.Context, cfg config.Config, logger *zap.Logger, path string) ([]catalog.Category, error) {
	docs := newDocumentFetcher(cfg, logger)
	categories, err := catalog.Discover(ctx, docs, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("discover categories: %w", err)
	}
	if err := catalog.WriteCategories(path, categories); err != nil {
		return nil, err
	}
	logger.Info("categories written", zap.Int("count", len(categories)), zap.String("path", path))
	return categories, nil
}
