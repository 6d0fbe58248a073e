package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rolograph/rolograph/pkg/importer"
)

// ImportCmd represents the import command group.
var ImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import contacts",
	Long: `Bulk import contacts from LinkedIn connection exports and calendar
attendee lists. Each run is tracked as a batch and can be rolled back as a
unit. Records matching an existing contact by a strong identifier are
skipped; suspiciously similar names are flagged for review, never merged
automatically.

Examples:
  rolo import linkedin ./Connections.csv
  rolo import calendar ./attendees.csv
  rolo import rollback <batch-id>`,
}

var importLinkedInCmd = &cobra.Command{
	Use:   "linkedin <csv-file>",
	Short: "Import a LinkedIn connections export",
	Long: `Import a LinkedIn connections CSV export. Expected columns:
First Name, Last Name, URL, Email Address, Company, Position.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportLinkedIn,
}

var importCalendarCmd = &cobra.Command{
	Use:   "calendar <csv-file>",
	Short: "Import calendar attendees",
	Long: `Import calendar attendees from a CSV with columns:
Name, Email, Event. Attendee names are weak evidence and are kept in a
separate namespace from names you typed yourself.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCalendar,
}

var importRollbackCmd = &cobra.Command{
	Use:   "rollback <batch-id>",
	Short: "Remove everything an import batch created",
	Long: `Remove every contact an import batch created, along with their
identities, facts and relationships. Contacts that existed before the
batch are untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportRollback,
}

func init() {
	ImportCmd.AddCommand(importLinkedInCmd)
	ImportCmd.AddCommand(importCalendarCmd)
	ImportCmd.AddCommand(importRollbackCmd)
}

func runImportLinkedIn(cmd *cobra.Command, args []string) error {
	records, err := readLinkedInCSV(args[0])
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Service.ImportLinkedIn(cmd.Context(), app.OwnerID, records)
	if err != nil {
		return err
	}

	printImportResult(cmd, result)
	return nil
}

func runImportCalendar(cmd *cobra.Command, args []string) error {
	records, err := readCalendarCSV(args[0])
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Service.ImportCalendar(cmd.Context(), app.OwnerID, records)
	if err != nil {
		return err
	}

	printImportResult(cmd, result)
	return nil
}

func runImportRollback(cmd *cobra.Command, args []string) error {
	batchID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid batch ID: %w", err)
	}

	app, err := NewApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	removed, err := app.Service.RollbackImport(cmd.Context(), app.OwnerID, batchID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back batch %s: %d contact(s) removed\n", batchID, removed)
	return nil
}

func printImportResult(cmd *cobra.Command, result *importer.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s finished\n", result.Batch.ID)
	fmt.Fprintf(out, "  created:    %d\n", result.Created)
	fmt.Fprintf(out, "  duplicates: %d\n", result.Duplicates)
	fmt.Fprintf(out, "  skipped:    %d\n", result.Skipped)
	if result.Flagged > 0 {
		fmt.Fprintf(out, "  flagged:    %d (run `rolo dedup list` to review)\n", result.Flagged)
	}
}

func readLinkedInCSV(path string) ([]importer.LinkedInRecord, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	col := columnIndex(header)
	records := make([]importer.LinkedInRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, importer.LinkedInRecord{
			FirstName:  field(row, col, "first name"),
			LastName:   field(row, col, "last name"),
			Email:      field(row, col, "email address"),
			Company:    field(row, col, "company"),
			Position:   field(row, col, "position"),
			ProfileURL: field(row, col, "url"),
		})
	}
	return records, nil
}

func readCalendarCSV(path string) ([]importer.CalendarRecord, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	col := columnIndex(header)
	records := make([]importer.CalendarRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, importer.CalendarRecord{
			DisplayName: field(row, col, "name"),
			Email:       field(row, col, "email"),
			EventTitle:  field(row, col, "event"),
		})
	}
	return records, nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err = reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading CSV row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
