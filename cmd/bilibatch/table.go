package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tinoosan/bilibatch/internal/data"
)

func renderItems(items []data.Item) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Title", "AID", "CID"})
	for _, it := range items {
		tw.AppendRow(table.Row{
			strconv.Itoa(it.Index),
			it.Title,
			strconv.FormatInt(it.AID, 10),
			strconv.FormatInt(it.CID, 10),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
