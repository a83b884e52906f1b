// Package ingest glues the CLI to the ingestion pipeline. It assembles the
// fetch, resolve and rules stack from the active configuration, runs
// batches and renders the outcome report.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lepinkainen/stacks/internal/cmdutil"
	ingestion "github.com/lepinkainen/stacks/internal/ingest"
)

// Cmd ingests specific books by their external record ids.
type Cmd struct {
	IDs    []string `arg:"" name:"id" help:"External book ids to ingest."`
	Source string   `help:"Source tag recorded on created books." default:"manual"`
}

func (c *Cmd) Run() error {
	ctx := context.Background()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	result, err := p.service.IngestIDs(ctx, c.IDs, c.Source)
	if err != nil {
		return err
	}

	fmt.Println(buildReport(result))
	return nil
}

// AuthorCmd discovers an author's books and ingests them all.
type AuthorCmd struct {
	AuthorID string `arg:"" name:"author-id" help:"External author id."`
	Limit    int    `help:"Maximum number of books to ingest, 0 means all."`
}

func (a *AuthorCmd) Run() error {
	ctx := context.Background()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	listing, err := p.client.AuthorBooks(ctx, a.AuthorID, a.Limit)
	if err != nil {
		return fmt.Errorf("failed to list author books: %w", err)
	}
	if len(listing.Books) == 0 {
		fmt.Printf("no books found for author %s\n", a.AuthorID)
		return nil
	}
	fmt.Printf("found %d books by %s\n", len(listing.Books), listing.Name)

	ids := make([]string, 0, len(listing.Books))
	for _, b := range listing.Books {
		ids = append(ids, b.GoodreadsID)
	}

	result, err := p.service.IngestIDs(ctx, ids, "author")
	if err != nil {
		return err
	}

	fmt.Println(buildReport(result))
	return nil
}

func buildReport(result *ingestion.Result) string {
	var sb strings.Builder

	if len(result.Created) > 0 {
		rows := make([][]string, 0, len(result.Created))
		for _, b := range result.Created {
			hidden := ""
			if b.Hidden {
				hidden = b.HiddenReason
			}
			rows = append(rows, []string{b.GoodreadsID, b.WorkID, b.Title, strconv.Itoa(b.Pages), hidden})
		}
		sb.WriteString(cmdutil.RenderTable([]string{"ID", "WORK", "TITLE", "PAGES", "HIDDEN"}, rows))
		sb.WriteString("\n")
	}

	if len(result.Failed) > 0 {
		rows := make([][]string, 0, len(result.Failed))
		for _, f := range result.Failed {
			rows = append(rows, []string{f.GoodreadsID, f.Reason, f.Err.Error()})
		}
		sb.WriteString(cmdutil.RenderTable([]string{"ID", "REASON", "ERROR"}, rows))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "created %d, skipped %d, failed %d",
		len(result.Created), result.Skipped, len(result.Failed))
	return sb.String()
}
