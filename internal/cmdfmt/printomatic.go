// Package cmdfmt renders command output as paged tables or JSON, selected by
// the global output flags.
package cmdfmt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/config"
)

// printer is the subset of table.Writer the Printomatic drives, also
// satisfied by the JSON printer.
type printer interface {
	SetColumnConfigs([]table.ColumnConfig)
	AppendRow(row table.Row, configs ...table.RowConfig)
	Render() string
}

// Printomatic pages rows to stdout as either a table or JSON. Create one per
// report, AddItem for each row, then PrintRemaining before returning.
type Printomatic struct {
	columns  []table.ColumnConfig
	pageSize uint
	rows     uint
	printer  printer
}

// NewPrintomatic sets up output with the given columns. Columns not in
// defaultColumns are hidden unless selected with the global columns flag
// ('all' selects everything).
func NewPrintomatic(allColumns []string, defaultColumns []string) Printomatic {
	selected := viper.GetStringSlice(config.ColumnsKey)
	showAll := slices.Contains(selected, "all")

	columns := make([]table.ColumnConfig, 0, len(allColumns))
	for _, name := range allColumns {
		visible := showAll || slices.Contains(defaultColumns, name)
		for _, sel := range selected {
			if strings.EqualFold(sel, name) {
				visible = true
			}
		}
		columns = append(columns, table.ColumnConfig{Name: name, Hidden: !visible})
	}

	p := Printomatic{
		columns:  columns,
		pageSize: viper.GetUint(config.PageSizeKey),
	}
	p.printer = p.newPrinter()
	return p
}

func (p *Printomatic) newPrinter() printer {
	if viper.GetBool(config.PrintJsonPretty) {
		return newJSONPrinter(true, p.columns)
	}
	if viper.GetBool(config.PrintJsonKey) {
		return newJSONPrinter(false, p.columns)
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs(p.columns)
	header := make(table.Row, 0, len(p.columns))
	for _, col := range p.columns {
		header = append(header, col.Name)
	}
	t.AppendHeader(header)
	return t
}

// AddItem appends one row. Values must line up with allColumns, hidden ones
// included. The page is flushed automatically once it reaches the configured
// page size.
func (p *Printomatic) AddItem(values ...any) {
	if len(values) != len(p.columns) {
		panic(fmt.Sprintf("unable to print row, got %d values for %d columns (this is likely a bug)",
			len(values), len(p.columns)))
	}
	p.printer.AppendRow(table.Row(values))
	p.rows++
	if p.pageSize != 0 && p.rows >= p.pageSize {
		p.flush()
	}
}

// PrintRemaining flushes any rows still buffered. Nothing is printed for an
// empty report.
func (p *Printomatic) PrintRemaining() {
	p.flush()
}

func (p *Printomatic) flush() {
	if p.rows == 0 {
		return
	}
	fmt.Println(p.printer.Render())
	p.rows = 0
	p.printer = p.newPrinter()
}
