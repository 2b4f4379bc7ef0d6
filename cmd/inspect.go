package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scan2sheet/internal/export"
	"scan2sheet/internal/logger"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [xlsx-file]",
	Short: "Print the sheets of a workbook as CSV",
	Long: `Read an XLSX workbook, such as one written by "scan2sheet extract",
and print every sheet as CSV preceded by a "# <sheet name>" line.`,
	Example: `  scan2sheet inspect extracted_tables.xlsx
  scan2sheet inspect extracted_tables.xlsx --sheet Page_2_Table_1`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("sheet", "", "Only print this sheet")
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("inspect")

	only, _ := cmd.Flags().GetString("sheet")

	data, err := readInputFile(args[0], log)
	if err != nil {
		return err
	}

	sheets, err := export.ReadWorkbook(data)
	if err != nil {
		return fmt.Errorf("failed to read workbook: %w", err)
	}

	w := csv.NewWriter(os.Stdout)
	found := false
	for _, sheet := range sheets {
		if only != "" && sheet.Name != only {
			continue
		}
		found = true

		w.Flush()
		fmt.Printf("# %s\n", sheet.Name)
		if err := w.WriteAll(sheet.Grid); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sheet.Name, err)
		}
	}
	w.Flush()

	if only != "" && !found {
		return fmt.Errorf("sheet %q not found", only)
	}

	log.Debug().Int("sheets", len(sheets)).Str("file", args[0]).Msg("Workbook inspected")
	return w.Error()
}
