package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/migration"
	"erp-sync-service/internal/sync"
)

var (
	pullSince  string
	pullAll    bool
	pageOffset int
	pageLimit  int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the state storage schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		defer logger.Sync()
		if cfg.StateStorage.Type == "memory" {
			return fmt.Errorf("memory storage has no schema to migrate")
		}
		if err := migration.NewMigration(cfg.StateStorage.Connection(), nil).Up(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Log.Info("Schema is up to date")
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull outgoing pickings from the ERP",
	Long: `Pull one page of outgoing pickings into local deliveries, or every page
with --all. --since limits the pull to pickings written at or after an
RFC 3339 timestamp.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := sync.PullOptions{Offset: pageOffset, Limit: pageLimit}
		if pullSince != "" {
			since, err := time.Parse(time.RFC3339, pullSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			opts.Since = since
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var pages []*sync.BatchResult
		for {
			res, err := a.engine.PullDeliveries(cmd.Context(), opts)
			if err != nil {
				return err
			}
			pages = append(pages, res)
			if !pullAll || !res.HasMore || res.Aborted || res.NextOffset <= opts.Offset {
				break
			}
			opts.Offset = res.NextOffset
		}
		return printJSON(pages)
	},
}

var syncLeadsCmd = &cobra.Command{
	Use:   "sync-leads",
	Short: "Push unsynced leads and pull their quotations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.SyncLeads(cmd.Context(), sync.PageOptions{Offset: pageOffset, Limit: pageLimit})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullSince, "since", "", "only pickings written at or after this time")
	pullCmd.Flags().BoolVar(&pullAll, "all", false, "follow pagination until every page is pulled")
	for _, c := range []*cobra.Command{pullCmd, syncLeadsCmd} {
		c.Flags().IntVar(&pageOffset, "offset", 0, "first record to process")
		c.Flags().IntVar(&pageLimit, "limit", 0, "page size (0 for the configured batch size)")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
