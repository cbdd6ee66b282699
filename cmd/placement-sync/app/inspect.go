package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/remote"
)

// inspectKinds are the collections inspect can print.
var inspectKinds = []string{"jobs", "students", "notifications", "shortlists"}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "inspect {jobs|students|notifications|shortlists}",
		Short:     "Print a collection of the stored portal document",
		Long:      `Read the portal document from the configured backend and print one of its collections as a table.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: inspectKinds,
		RunE:      runInspect,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	cmd.Flags().Duration("timeout", 10*time.Second, "Time allowed for reading the document")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to get timeout flag: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	store, err := remote.New(ctx, &cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create remote store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	select {
	case <-store.Ready():
	case <-ctx.Done():
		return fmt.Errorf("backend not ready: %w", ctx.Err())
	}

	var doc portal.Document
	data, err := store.Read(ctx, cfg.Backend.GetDocumentPath())
	switch {
	case errors.Is(err, remote.ErrNotFound):
		slog.Info("No document stored yet", "path", cfg.Backend.GetDocumentPath())
	case err != nil:
		return fmt.Errorf("failed to read document: %w", err)
	default:
		if doc, err = portal.DecodeDocument(data); err != nil {
			return err
		}
	}

	return renderCollection(cmd.OutOrStdout(), doc, args[0])
}

// renderCollection prints the named collection of doc as a table.
func renderCollection(w io.Writer, doc portal.Document, kind string) error {
	table := tablewriter.NewWriter(w)

	switch kind {
	case "jobs":
		table.Header("ID", "Company", "Role", "Location", "Package", "Deadline", "Status")
		for _, j := range doc.Jobs {
			if err := table.Append([]string{strconv.Itoa(j.ID), j.Company, j.Role, j.Location, j.Package, j.Deadline, j.Status}); err != nil {
				return err
			}
		}
	case "students":
		table.Header("ID", "USN", "Name", "Branch", "CGPA")
		for _, s := range doc.Students {
			if err := table.Append([]string{s.ID.String(), s.USN, s.Name, s.Branch, s.Extra.Text("cgpa")}); err != nil {
				return err
			}
		}
	case "notifications":
		table.Header("ID", "Type", "Title", "Message", "Read", "Time")
		for _, n := range doc.Notifications {
			ts := time.UnixMilli(n.Timestamp).UTC().Format(time.RFC3339)
			if err := table.Append([]string{n.ID.String(), string(n.Type), n.Title, n.Message, strconv.FormatBool(n.Read), ts}); err != nil {
				return err
			}
		}
	case "shortlists":
		table.Header("Job", "Rows")
		for _, key := range slices.Sorted(maps.Keys(doc.JobShortlisted)) {
			if err := table.Append([]string{key, strconv.Itoa(len(doc.JobShortlisted[key]))}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown collection %q", kind)
	}

	return table.Render()
}
