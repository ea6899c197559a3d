package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/config"
	"github.com/pavelanni/examgen/internal/store"
)

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents [filename]",
		Short: "List registered documents, or show one by filename",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDocuments,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().Int("limit", 20, "Maximum number of documents to list")
	addLogFlags(cmd)
	return cmd
}

func completionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completions",
		Short: "Show the most recent language-model completions",
		Args:  cobra.NoArgs,
		RunE:  runCompletions,
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().Int("limit", 20, "Maximum number of completions to show")
	addLogFlags(cmd)
	return cmd
}

type documentList struct {
	Total     int                    `json:"total"`
	Documents []store.DocumentRecord `json:"documents"`
}

// openStore loads the configuration for cmd and opens its database.
func openStore(cmd *cobra.Command) (*store.Store, int, error) {
	v := viperForCmd(cmd)
	cfg, err := config.Load(v)
	if err != nil {
		return nil, 0, err
	}
	limit := v.GetInt("limit")
	if limit <= 0 {
		return nil, 0, fmt.Errorf("--limit must be positive")
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open database: %w", err)
	}
	return db, limit, nil
}

func runDocuments(cmd *cobra.Command, args []string) error {
	defer setupLogging(cmd)()
	db, limit, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	if len(args) == 1 {
		doc, err := db.GetDocument(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s is not registered", args[0])
		}
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), doc)
	}

	total, err := db.DocumentCount(ctx)
	if err != nil {
		return err
	}
	docs, err := db.ListDocuments(ctx, limit)
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []store.DocumentRecord{}
	}
	return writeJSON(cmd.OutOrStdout(), documentList{Total: total, Documents: docs})
}

func runCompletions(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	db, limit, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.ListCompletions(cmd.Context(), limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
