// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/AleutianAI/Waymark/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	outputMode string // CLI override for output mode (full/standard/minimal/machine)

	docTitle       string
	docDescription string
	docCategory    string
	listCategory   string
	listPrefix     string
	skipConfirm    bool

	revFile          string
	revEffectiveFrom string
	revEffectiveTo   string
	revLabel         string
	revNotes         string
	waitForIngestion bool

	asOfDate          string
	searchSources     []string
	searchLimit       int
	searchInteractive bool

	watchIngestion bool
	showLastReport bool

	backupDir  string
	gcsBucket  string
	gcsProject string
	gcsKeyPath string

	statsDays int

	rootCmd = &cobra.Command{
		Use:   "waymark",
		Short: "A cli to manage the Waymark versioned policy document registry",
		Long: `Waymark tracks published revisions of policy documents and answers
				"which version was in force on this date" for retrieval systems.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize output mode from flag or environment
			if outputMode != "" {
				ux.SetMode(ux.ParseMode(outputMode))
			} else {
				ux.InitMode()
			}
		},
	}

	// --- Documents ---
	documentsCmd = &cobra.Command{
		Use:     "documents",
		Short:   "Manage the registered policy documents",
		Aliases: []string{"docs"},
	}
	documentsCreateCmd = &cobra.Command{
		Use:   "create [source]",
		Short: "Register a new policy document under a source slug",
		Args:  cobra.ExactArgs(1),
		Run:   runCreateDocument, // Defined in cmd_documents.go
	}
	documentsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered documents with their current revision",
		Run:   runListDocuments, // Defined in cmd_documents.go
	}
	documentsGetCmd = &cobra.Command{
		Use:   "get [source]",
		Short: "Show one document and its full revision history",
		Args:  cobra.ExactArgs(1),
		Run:   runGetDocument, // Defined in cmd_documents.go
	}
	documentsUpdateCmd = &cobra.Command{
		Use:   "update [source]",
		Short: "Update a document's title, description, or category",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdateDocument, // Defined in cmd_documents.go
	}
	documentsDeleteCmd = &cobra.Command{
		Use:   "delete [source]",
		Short: "Delete a document, its revisions, and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteDocument, // Defined in cmd_documents.go
	}

	// --- Revisions ---
	revisionsCmd = &cobra.Command{
		Use:     "revisions",
		Short:   "Manage the published revisions of a document",
		Aliases: []string{"revs"},
	}
	revisionsAddCmd = &cobra.Command{
		Use:   "add [source]",
		Short: "Publish a new revision from a local file",
		Args:  cobra.ExactArgs(1),
		Run:   runAddRevision, // Defined in cmd_revisions.go
	}
	revisionsListCmd = &cobra.Command{
		Use:   "list [source]",
		Short: "List the revisions of a document, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runListRevisions, // Defined in cmd_revisions.go
	}
	revisionsUpdateCmd = &cobra.Command{
		Use:   "update [source] [revision_id]",
		Short: "Amend a revision's label, notes, or effective range",
		Args:  cobra.ExactArgs(2),
		Run:   runUpdateRevision, // Defined in cmd_revisions.go
	}
	revisionsDeleteCmd = &cobra.Command{
		Use:   "delete [source] [revision_id]",
		Short: "Delete a revision and purge its indexed chunks",
		Args:  cobra.ExactArgs(2),
		Run:   runDeleteRevision, // Defined in cmd_revisions.go
	}
	revisionsReindexCmd = &cobra.Command{
		Use:   "reindex [source] [revision_id]",
		Short: "Re-run chunking and embedding for a stored revision",
		Args:  cobra.ExactArgs(2),
		Run:   runReindexRevision, // Defined in cmd_revisions.go
	}

	// --- Temporal Queries ---
	resolveCmd = &cobra.Command{
		Use:   "resolve [source] [date]",
		Short: "Show which revision of a document was in force on a date",
		Args:  cobra.ExactArgs(2),
		Run:   runResolve, // Defined in cmd_resolve.go
	}
	snapshotCmd = &cobra.Command{
		Use:   "snapshot [date]",
		Short: "Show the revision of every document in force on a date",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshot, // Defined in cmd_resolve.go
	}

	// --- Search ---
	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search scoped to the revisions in force on a date",
		Run:   runSearch, // Defined in cmd_search.go
	}
	sectionCmd = &cobra.Command{
		Use:   "section [source] [ref]",
		Short: "Fetch a full section by reference as it read on a date",
		Args:  cobra.ExactArgs(2),
		Run:   runGetSection, // Defined in cmd_search.go
	}

	// --- Operations ---
	statusCmd = &cobra.Command{
		Use:   "status [revision_id]",
		Short: "Show the ingestion status of a revision",
		Args:  cobra.ExactArgs(1),
		Run:   runIngestionStatus, // Defined in cmd_status.go
	}
	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Run a registry/index consistency sweep and print the findings",
		Run:   runVerify, // Defined in cmd_verify.go
	}
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Trigger a registry backup and optionally copy or upload it",
		Run:   runBackup, // Defined in cmd_backup.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show per-operation usage counts from the analytics store",
		Run:   runStats, // Defined in cmd_stats.go
	}
)

// init runs when the Go program starts
func init() {
	// Global output mode flag
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: full (default, rich), standard, minimal, or machine (scripting)")

	// Document commands
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.AddCommand(documentsCreateCmd)
	documentsCreateCmd.Flags().StringVar(&docTitle, "title", "", "Human readable document title (required)")
	documentsCreateCmd.Flags().StringVar(&docDescription, "description", "", "One line description of the document")
	documentsCreateCmd.Flags().StringVar(&docCategory, "category", "framework",
		"Document category: framework, standard, or guidance")
	documentsCmd.AddCommand(documentsListCmd)
	documentsListCmd.Flags().StringVar(&listCategory, "category", "", "Only list documents in this category")
	documentsListCmd.Flags().StringVar(&listPrefix, "source-prefix", "", "Only list sources starting with this prefix")
	documentsCmd.AddCommand(documentsGetCmd)
	documentsCmd.AddCommand(documentsUpdateCmd)
	documentsUpdateCmd.Flags().StringVar(&docTitle, "title", "", "New document title")
	documentsUpdateCmd.Flags().StringVar(&docDescription, "description", "", "New document description")
	documentsUpdateCmd.Flags().StringVar(&docCategory, "category", "", "New document category")
	documentsCmd.AddCommand(documentsDeleteCmd)
	documentsDeleteCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip the confirmation prompt")

	// Revision commands
	rootCmd.AddCommand(revisionsCmd)
	revisionsCmd.AddCommand(revisionsAddCmd)
	revisionsAddCmd.Flags().StringVar(&revFile, "file", "", "Path to the revision content, markdown or plain text (required)")
	revisionsAddCmd.Flags().StringVar(&revEffectiveFrom, "effective-from", "", "First day the revision is in force, YYYY-MM-DD (required)")
	revisionsAddCmd.Flags().StringVar(&revEffectiveTo, "effective-to", "", "Last day the revision is in force, YYYY-MM-DD (open ended if omitted)")
	revisionsAddCmd.Flags().StringVar(&revLabel, "label", "", "Version label, e.g. 'December 2024'")
	revisionsAddCmd.Flags().StringVar(&revNotes, "notes", "", "Free text notes about the revision")
	revisionsAddCmd.Flags().BoolVar(&waitForIngestion, "wait", false, "Block until chunking and indexing finish")
	revisionsCmd.AddCommand(revisionsListCmd)
	revisionsCmd.AddCommand(revisionsUpdateCmd)
	revisionsUpdateCmd.Flags().StringVar(&revEffectiveFrom, "effective-from", "", "New first day in force, YYYY-MM-DD")
	revisionsUpdateCmd.Flags().StringVar(&revEffectiveTo, "effective-to", "", "New last day in force, YYYY-MM-DD")
	revisionsUpdateCmd.Flags().StringVar(&revLabel, "label", "", "New version label")
	revisionsUpdateCmd.Flags().StringVar(&revNotes, "notes", "", "New revision notes")
	revisionsCmd.AddCommand(revisionsDeleteCmd)
	revisionsDeleteCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip the confirmation prompt")
	revisionsCmd.AddCommand(revisionsReindexCmd)

	// Temporal queries
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(snapshotCmd)

	// Search
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&asOfDate, "as-of", "", "Resolve against this date instead of today, YYYY-MM-DD")
	searchCmd.Flags().StringArrayVar(&searchSources, "source", nil, "Restrict to these sources (repeatable)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of hits (server default when 0)")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "Start an interactive query loop")
	rootCmd.AddCommand(sectionCmd)
	sectionCmd.Flags().StringVar(&asOfDate, "as-of", "", "Resolve against this date instead of today, YYYY-MM-DD")

	// Operations
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&watchIngestion, "watch", false, "Stream progress until the ingestion finishes")
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&showLastReport, "last", false, "Show the last stored report instead of running a sweep")
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Copy the backup archive into this local directory")
	backupCmd.Flags().StringVar(&gcsBucket, "gcs-bucket", "", "Upload the archive to this GCS bucket")
	backupCmd.Flags().StringVar(&gcsProject, "gcs-project", "", "GCP project that owns the bucket")
	backupCmd.Flags().StringVar(&gcsKeyPath, "gcs-key", "", "Path to a service account key file")
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of days of usage history to aggregate")
}
