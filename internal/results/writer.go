package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

var csvHeader = []string{
	"protocol", "delay_ms", "loss_percent", "bandwidth_mbps",
	"requests", "successes", "failures",
	"min_ms", "max_ms", "mean_ms", "median_ms", "p95_ms", "p99_ms",
	"filtered", "degraded", "missing",
}

// WriteFiles saves the run's rows as CSV and the full results as JSON under
// dir, named by the run ID.
func WriteFiles(sink *Sink, dir, runID string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	csvPath := filepath.Join(dir, fmt.Sprintf("results_%s.csv", runID))
	if err := writeCSV(sink.Rows(), csvPath); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	jsonPath := filepath.Join(dir, fmt.Sprintf("results_%s.json", runID))
	if err := writeJSON(sink.Results(), jsonPath); err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	logging.Info("results written",
		logging.F("csv", csvPath),
		logging.F("json", jsonPath))
	return nil
}

func writeCSV(rows []types.ResultRow, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(csvRecord(row)); err != nil {
			return err
		}
	}
	return w.Error()
}

func csvRecord(row types.ResultRow) []string {
	return []string{
		row.Protocol,
		strconv.FormatUint(uint64(row.DelayMs), 10),
		strconv.FormatUint(uint64(row.LossPercent), 10),
		strconv.FormatUint(uint64(row.BandwidthMbps), 10),
		strconv.Itoa(row.Requests),
		strconv.Itoa(row.Successes),
		strconv.Itoa(row.Failures),
		fmt.Sprintf("%.3f", row.MinMs),
		fmt.Sprintf("%.3f", row.MaxMs),
		fmt.Sprintf("%.3f", row.MeanMs),
		fmt.Sprintf("%.3f", row.MedianMs),
		fmt.Sprintf("%.3f", row.P95Ms),
		fmt.Sprintf("%.3f", row.P99Ms),
		strconv.FormatBool(row.Filtered),
		strconv.FormatBool(row.Degraded),
		strconv.FormatBool(row.Missing),
	}
}

func writeJSON(results []types.ProtocolRunResult, path string) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
