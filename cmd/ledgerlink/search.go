package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/azuminxx/simple-redger-sub000/config"
	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/merging"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
)

func newSearchCommand() *cobra.Command {
	var (
		filters     []string
		fixturePath string
		catalogPath string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print the merged records as JSON",
		Example: `  ledgerlink search --filter SeatNo=101
  ledgerlink search --filter Floor=3 --filter Area=east --fixture ledgers.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(filters)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if catalogPath != "" {
				cfg.CatalogPath = catalogPath
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			cat, err := cfg.Catalog()
			if err != nil {
				return err
			}
			client, err := searchClient(cfg, cat, fixturePath, logger)
			if err != nil {
				return err
			}

			fetch := fetcher.New(client, cat, nil, cfg.Fetcher(), logger)
			engine := search.NewEngine(fetch, cat, merging.NewEngine(logger), cfg.Search(), logger)
			session := search.NewSession("", engine, rowcache.NewMemory(), nil, logger)

			result, err := session.Search(cmd.Context(), search.Request{Filter: filter})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Filter as Field=value; repeatable")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "Search a YAML fixture instead of the remote store")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Store catalog YAML (defaults to CATALOG_PATH or the built-in ledgers)")
	return cmd
}

func parseFilter(pairs []string) (models.Filter, error) {
	filter := make(models.Filter, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid filter %q, expected Field=value", pair)
		}
		filter[strings.TrimSpace(name)] = value
	}
	return filter, nil
}

func searchClient(cfg *config.Config, cat *catalog.Catalog, fixturePath string, logger ectologger.Logger) (recordstore.Client, error) {
	if fixturePath != "" {
		client, err := recordstore.LoadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	if cfg.RecordStoreBaseURL == "" {
		return nil, errors.New("either --fixture or RECORD_STORE_BASE_URL is required")
	}
	return recordstore.NewHTTPClient(cfg.RecordStore(cat), logger), nil
}
