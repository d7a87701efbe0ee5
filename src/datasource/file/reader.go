// reader.go
package file

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/processor"
	"ConsumerSegmentation/src/utils"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var (
	ErrMissingColumn     = errors.New("required column missing")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrInvalidValue      = errors.New("invalid value")
	ErrEmptySheet        = errors.New("sheet has no header row")
)

// Options 读取数据集时的格式参数
type Options struct {
	Encoding  string // IANA 字符集名称，空或 utf-8 时不转换
	Delimiter string
	SheetName string // xlsx 工作表名，空则取第一个
}

// Dataset 启动时加载的记录表，加载后只读
type Dataset struct {
	Path      string
	Frame     dataframe.DataFrame
	Schema    processor.Schema
	AgeMin    float64
	AgeMax    float64
	Methods   []string // 数据中出现过的支付方式，按首次出现顺序
	HasOnline bool
}

// LoadDataset 按配置加载数据集，任何错误都应视为启动失败
func LoadDataset(cfg *config.Config, dcfg *config.DataConfig) (*Dataset, error) {
	return Load(cfg.DataFile, processor.SchemaFrom(dcfg.Columns), Options{
		Encoding:  cfg.Encoding,
		Delimiter: cfg.Delimiter,
		SheetName: cfg.SheetName,
	})
}

// Load 根据扩展名选择读取方式，再把业务列转换成对应类型
func Load(path string, schema processor.Schema, opt Options) (*Dataset, error) {
	var (
		df  dataframe.DataFrame
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open dataset: %w", openErr)
		}
		defer f.Close()
		df, err = ReadCSV(f, opt)
	case ".xlsx":
		df, err = ReadXLSX(path, opt.SheetName)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	df, err = Normalize(df, schema)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	ds := &Dataset{
		Path:      path,
		Frame:     df,
		Schema:    schema,
		HasOnline: utils.HasColumn(df, schema.Online),
	}
	ds.AgeMin, ds.AgeMax = bounds(df.Col(schema.Age).Float())
	ds.Methods = distinct(df.Col(schema.Method).Records())
	return ds, nil
}

// ReadCSV 读取分隔文本，所有列先按字符串读入，类型转换由 Normalize 完成
func ReadCSV(r io.Reader, opt Options) (dataframe.DataFrame, error) {
	decoded, err := decode(r, opt.Encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	delim := ','
	if opt.Delimiter != "" {
		d, size := utf8.DecodeRuneInString(opt.Delimiter)
		if size != len(opt.Delimiter) {
			return dataframe.DataFrame{}, fmt.Errorf("delimiter %q must be a single character", opt.Delimiter)
		}
		delim = d
	}

	df := dataframe.ReadCSV(decoded,
		dataframe.WithDelimiter(delim),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse csv: %w", df.Err)
	}
	return df, nil
}

// decode 把非 utf-8 的输入转换成 utf-8
func decode(r io.Reader, charset string) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, charset)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ReadXLSX 读取工作表，第一行为列名
func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: workbook has no sheets", ErrEmptySheet)
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("sheet %q not found", sheetName)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 || sheet.Rows[0] == nil {
		return dataframe.DataFrame{}, ErrEmptySheet
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	// 去掉表头末尾的空单元格
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.DataFrame{}, ErrEmptySheet
	}

	columns := make([][]string, len(headers))
	for _, row := range sheet.Rows[1:] {
		if row == nil || blankRow(row) {
			continue
		}
		for i := range headers {
			value := ""
			if i < len(row.Cells) && row.Cells[i] != nil {
				value = row.Cells[i].Value
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

func blankRow(row *xlsx.Row) bool {
	for _, c := range row.Cells {
		if c != nil && strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}

// Normalize 校验必需列并把业务列转换成 Float / String / Bool
func Normalize(df dataframe.DataFrame, schema processor.Schema) (dataframe.DataFrame, error) {
	for _, col := range schema.Required() {
		if !utils.HasColumn(df, col) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	for _, col := range []string{schema.Age, schema.Income} {
		values, err := parseFloats(df.Col(col))
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("column %s: %w", col, err)
		}
		df = df.Mutate(series.New(values, series.Float, col))
	}

	methods := df.Col(schema.Method).Records()
	for i := range methods {
		methods[i] = strings.TrimSpace(methods[i])
	}
	df = df.Mutate(series.New(methods, series.String, schema.Method))

	if utils.HasColumn(df, schema.Online) {
		values, err := parseBools(df.Col(schema.Online))
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("column %s: %w", schema.Online, err)
		}
		df = df.Mutate(series.New(values, series.Bool, schema.Online))
	}

	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

func parseFloats(s series.Series) ([]float64, error) {
	records := s.Records()
	out := make([]float64, len(records))
	for i, r := range records {
		v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: row %d: %q is not a number", ErrInvalidValue, i+1, r)
		}
		out[i] = v
	}
	return out, nil
}

func parseBools(s series.Series) ([]bool, error) {
	records := s.Records()
	out := make([]bool, len(records))
	for i, r := range records {
		v, err := ParseBool(r)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidValue, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseBool 在 strconv.ParseBool 的基础上接受 yes/no 和 si/sí/no
func ParseBool(s string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if b, err := strconv.ParseBool(v); err == nil {
		return b, nil
	}
	switch v {
	case "yes", "y", "si", "sí", "s":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

func bounds(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
