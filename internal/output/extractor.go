package output

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/wildstyl3r/tracktoy/internal/config"
	"github.com/wildstyl3r/tracktoy/internal/logging"
	"github.com/wildstyl3r/tracktoy/internal/sim"
	"github.com/wildstyl3r/tracktoy/internal/utils"
)

type DataExtractor struct {
	result *sim.Result
	sp     *config.ScenarioParameters
	log    logging.Logger
}

func NewDataExtractor(result *sim.Result, sp *config.ScenarioParameters, log logging.Logger) *DataExtractor {
	if log == nil {
		log = logging.Noop()
	}
	return &DataExtractor{result: result, sp: sp, log: log}
}

// Save writes every selected table of the scenario. A table that cannot be
// written does not stop the others; the errors are joined.
func (de *DataExtractor) Save(ctx context.Context, df DataFlags) error {
	var errs []error
	units := de.sp.OutputUnits()
	for _, name := range slices.Sorted(maps.Keys(df.tables)) {
		table := df.tables[name]
		if !*table.saveFlag && !*df.all {
			continue
		}
		rows := table.rows(de.result)
		if len(rows) == 0 {
			continue
		}
		if err := de.write(df.outputPath, table, rows, units); err != nil {
			errs = append(errs, fmt.Errorf("unable to save %s: %w", name, err))
			continue
		}
		de.log.Debug(ctx, "table saved", logging.String("table", name), logging.Int("rows", len(rows)))
	}
	if de.sp.Verbose() && len(errs) == 0 {
		de.log.Info(ctx, "scenario saved", logging.String("path", df.outputPath))
	}
	return errors.Join(errs...)
}

func (de *DataExtractor) write(path string, table TableItem, rows [][]float64, units []string) error {
	file, err := utils.OpenFile(de.sp.MakeDir, path, table.fileSuffix, de.result.Scenario)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]string, len(table.columns))
	for i, c := range table.columns {
		header[i] = c.header(units)
	}
	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = format(config.Convert(v, table.columns[i].Unit, units, false))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("error writing csv: %w", err)
	}
	return file.Close()
}

var summaryColumns = []Column{
	{"scenario", nil}, {"particles", nil}, {"failed", nil}, {"reached", nil}, {"terminated", nil},
	{"mean pieces", nil}, {"max pieces", nil},
	{"mean E", energy}, {"std E", energy},
	{"min z", length}, {"max z", length}, {"worst gap", length}, {"splices", nil},
	{"elapsed", nil},
}

// SaveSummary writes one row per scenario to <path>/<run>_summary.csv, rows
// in natural scenario order.
func SaveSummary(results []*sim.Result, makeDir bool, path, run string, units []string) error {
	var data utils.CSV
	for _, r := range results {
		s := r.Summary()
		values := []float64{
			float64(s.Particles), float64(s.Failed), float64(s.Reached), float64(s.Terminated),
			s.MeanPieces, float64(s.MaxPieces),
			s.MeanFinalEnergy, s.StdFinalEnergy,
			s.MinFinalZ, s.MaxFinalZ, s.WorstGap, float64(s.Splices),
		}
		row := []string{r.Scenario}
		for i, v := range values {
			row = append(row, format(config.Convert(v, summaryColumns[i+1].Unit, units, false)))
		}
		row = append(row, strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 3, 64)+"s")
		data = append(data, row)
	}
	header := make([]string, len(summaryColumns))
	for i, c := range summaryColumns {
		header[i] = c.header(units)
	}
	return utils.WriteAsCSV(data, makeDir, path, "summary", run, header)
}
