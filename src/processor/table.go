package processor

import (
	"ConsumerSegmentation/src/utils"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Table 表格视图，全部单元格已转成文本
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t Table) Len() int { return len(t.Rows) }

// TableView 把过滤结果转成可展示的表格：布尔列转为文本，其余列按原值输出
func TableView(df dataframe.DataFrame) Table {
	names := df.Names()
	cols := make([][]string, len(names))
	for i, name := range names {
		cols[i] = columnText(df.Col(name))
	}

	rows := make([][]string, df.Nrow())
	for r := range rows {
		row := make([]string, len(names))
		for c := range names {
			row[c] = cols[c][r]
		}
		rows[r] = row
	}
	return Table{Columns: names, Rows: rows}
}

// TextFrame 与 TableView 相同的转换，但保留DataFrame形式(布尔列变为字符串列)
func TextFrame(df dataframe.DataFrame) dataframe.DataFrame {
	out := df
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.Bool {
			continue
		}
		out = out.Mutate(series.New(columnText(col), series.String, name))
	}
	return out
}

// ExportXLSX 把过滤结果写成xlsx，布尔列与表格视图一样写成文本
func ExportXLSX(df dataframe.DataFrame, w io.Writer, sheet string) error {
	return utils.WriteExcel(TextFrame(df), w, sheet)
}

func columnText(s series.Series) []string {
	out := make([]string, s.Len())
	for i := range out {
		e := s.Elem(i)
		if e.IsNA() {
			out[i] = ""
			continue
		}
		switch s.Type() {
		case series.Bool:
			b, err := e.Bool()
			if err != nil {
				out[i] = e.String()
				continue
			}
			out[i] = strconv.FormatBool(b)
		case series.Float:
			out[i] = utils.FormatFloat(e.Float())
		default:
			out[i] = e.String()
		}
	}
	return out
}
