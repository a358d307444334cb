package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
)

// catalogueIDPrefix namespaces spreadsheet player ids in external_id.
const catalogueIDPrefix = "catalogue:"

var (
	catalogueSeason string
	catalogueSheet  string
)

var importCatalogueCmd = &cobra.Command{
	Use:   "import-catalogue <file.xlsx>",
	Short: "Import players from a federation catalogue spreadsheet",
	Long: `Reads the first sheet (or --sheet) of an Excel catalogue. The header row
names the columns; recognised ones are player_id, nombre, equipo, posicion,
edad, nacionalidad, liga, minutos, partidos, goles, asistencias,
tarjetas_amarillas, tarjetas_rojas and foto_path. Only nombre is required.

Each row is merged into the catalogue like any other candidate and adds one
season line for --season. Importing the same file twice changes nothing.

Examples:
  scoutctl import-catalogue segunda_federacion.xlsx --season 2024/25`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCatalogue,
}

func init() {
	importCatalogueCmd.Flags().StringVar(&catalogueSeason, "season", "", "Season the statistics belong to, e.g. 2024/25")
	importCatalogueCmd.Flags().StringVar(&catalogueSheet, "sheet", "", "Sheet to read (default: the first one)")
	_ = importCatalogueCmd.MarkFlagRequired("season")
	rootCmd.AddCommand(importCatalogueCmd)
}

// catalogueRow is one spreadsheet line converted for import.
type catalogueRow struct {
	Line   int // 1-based spreadsheet row
	Player *models.Player
	Season *models.SeasonRecord
}

// catalogueSummary counts what an import did.
type catalogueSummary struct {
	Created      int
	Merged       int
	Ambiguous    []int // spreadsheet lines left for a manual merge
	SeasonsAdded int
}

type playerMerger interface {
	CreateOrMerge(ctx context.Context, candidate *models.Player) (*repositories.MergeResult, error)
}

type seasonAppender interface {
	AppendMany(ctx context.Context, playerID int64, records []*models.SeasonRecord) (int, error)
}

func runImportCatalogue(cmd *cobra.Command, args []string) error {
	season := strings.TrimSpace(catalogueSeason)
	if season == "" {
		return fmt.Errorf("--season must not be empty")
	}
	rows, err := readCatalogue(args[0], catalogueSheet, season)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := importCatalogue(cmd.Context(),
		repositories.NewPlayerRepository(a.db),
		repositories.NewSeasonRecordRepository(a.db),
		rows)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Read %d rows: %d players created, %d merged, %d season lines added\n",
		len(rows), summary.Created, summary.Merged, summary.SeasonsAdded)
	if len(summary.Ambiguous) > 0 {
		fmt.Fprintf(out, "%d rows match more than one possible player and were skipped (lines %v)\n",
			len(summary.Ambiguous), summary.Ambiguous)
	}
	return nil
}

// readCatalogue parses the spreadsheet at path. Rows without a name are skipped.
func readCatalogue(path, sheet, season string) ([]catalogueRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ReplaceAll(dedupe.Normalize(h), " ", "_")
		if _, dup := columns[key]; !dup && key != "" {
			columns[key] = i
		}
	}
	if _, ok := columns["nombre"]; !ok {
		return nil, fmt.Errorf("sheet %q has no nombre column", sheet)
	}

	var parsed []catalogueRow
	for i, cells := range rows[1:] {
		line := i + 2
		row, err := parseCatalogueRow(columns, cells, season)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if row == nil {
			continue
		}
		row.Line = line
		parsed = append(parsed, *row)
	}
	return parsed, nil
}

func parseCatalogueRow(columns map[string]int, cells []string, season string) (*catalogueRow, error) {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	name := cell("nombre")
	if name == "" {
		return nil, nil
	}

	player := &models.Player{
		Name:        name,
		Team:        cell("equipo"),
		Position:    cell("posicion"),
		Nationality: cell("nacionalidad"),
		PhotoURL:    cell("foto_path"),
	}
	if id := cell("player_id"); id != "" {
		n, err := count(id)
		if err != nil || n == nil {
			return nil, fmt.Errorf("player_id %q is not a number", id)
		}
		player.ExternalID = catalogueIDPrefix + strconv.Itoa(*n)
	}

	record := &models.SeasonRecord{
		Season:      season,
		Team:        player.Team,
		Competition: cell("liga"),
		Source:      models.SeasonSourceCatalog,
	}
	stats := []struct {
		column string
		dst    **int
	}{
		{"edad", &record.Age},
		{"minutos", &record.Minutes},
		{"partidos", &record.Appearances},
		{"goles", &record.Goals},
		{"asistencias", &record.Assists},
		{"tarjetas_amarillas", &record.YellowCards},
		{"tarjetas_rojas", &record.RedCards},
	}
	for _, s := range stats {
		v, err := count(cell(s.column))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.column, err)
		}
		*s.dst = v
	}
	return &catalogueRow{Player: player, Season: record}, nil
}

// count parses a non-negative whole number. Spreadsheets often store counts
// as floats ("12.0"); blanks and "-" are unknown.
func count(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return nil, fmt.Errorf("%q is not a whole number", raw)
	}
	n := int(f)
	return &n, nil
}

// importCatalogue merges every row and appends its season line. Rows that
// could be several stored players are skipped and reported.
func importCatalogue(ctx context.Context, players playerMerger, seasons seasonAppender, rows []catalogueRow) (*catalogueSummary, error) {
	summary := &catalogueSummary{}
	for _, row := range rows {
		merge, err := players.CreateOrMerge(ctx, row.Player)
		if err != nil {
			return summary, fmt.Errorf("row %d (%s): %w", row.Line, row.Player.Name, err)
		}
		switch {
		case merge.Outcome == dedupe.Ambiguous:
			summary.Ambiguous = append(summary.Ambiguous, row.Line)
			continue
		case merge.Created:
			summary.Created++
		default:
			summary.Merged++
		}

		added, err := seasons.AppendMany(ctx, merge.PlayerID, []*models.SeasonRecord{row.Season})
		if err != nil {
			return summary, fmt.Errorf("row %d (%s): %w", row.Line, row.Player.Name, err)
		}
		summary.SeasonsAdded += added
	}
	return summary, nil
}
