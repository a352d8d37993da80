package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"chevelle/internal/capacity"
)

// column pairs a header with its alignment. Numeric disc columns (counts,
// frame totals, MSF lengths, percentages) read best right-aligned.
type column struct {
	header string
	align  text.Align
}

func leftCol(header string) column  { return column{header: header, align: text.AlignLeft} }
func rightCol(header string) column { return column{header: header, align: text.AlignRight} }

// msfCell renders a frame count as a minutes:seconds:frames length.
func msfCell(frames int64) string { return capacity.MSF(frames) }

// framesCell renders a raw CD frame count.
func framesCell(frames int64) string { return strconv.FormatInt(frames, 10) }

func countCell(n int) string { return strconv.Itoa(n) }

// percentCell renders an already-scaled percentage value.
func percentCell(value float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, value)
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col.header
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
