package utils

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// FormatFloat 以最短形式输出浮点数，25.000000 -> 25
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CellValue 返回适合写入表格的单元格值
func CellValue(s series.Series, i int) interface{} {
	e := s.Elem(i)
	if e.IsNA() {
		return ""
	}
	switch s.Type() {
	case series.Float:
		return e.Float()
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return e.String()
		}
		return v
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return e.String()
		}
		return v
	default:
		return e.String()
	}
}

// WriteExcel 将DataFrame写成xlsx输出到w
func WriteExcel(df dataframe.DataFrame, w io.Writer, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, CellValue(col, rowIdx)); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
