package processor

import (
	"ConsumerSegmentation/src/utils"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"
)

// Status 统计结果是否可用，占位文本在展示层决定
type Status int

const (
	Available     Status = iota
	NoRows               // 前置条件不满足：没有可统计的行
	MissingColumn        // 需要的列不存在
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case NoRows:
		return "no_rows"
	case MissingColumn:
		return "missing_column"
	default:
		return "unknown"
	}
}

// MarshalText 让 JSON 输出可读的状态名
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Number interface {
	~int | ~float64
}

// Stat 单个统计量；Status 不为 Available 时 Value 无意义
type Stat[T Number] struct {
	Value  T      `json:"value"`
	Status Status `json:"status"`
	Column string `json:"column,omitempty"` // MissingColumn 时为缺失的列名
}

func (s Stat[T]) OK() bool { return s.Status == Available }

// Summary 统计面板的三个量
type Summary struct {
	Online    Stat[int]     `json:"online"`
	CashAge   Stat[float64] `json:"cash_age"`
	IncomeAge Stat[float64] `json:"income_age"`
}

// OnlinePurchases 线上购买的行数(布尔列求和)
func OnlinePurchases(df dataframe.DataFrame, schema Schema) Stat[int] {
	if !utils.HasColumn(df, schema.Online) {
		return Stat[int]{Status: MissingColumn, Column: schema.Online}
	}
	if df.Nrow() == 0 {
		return Stat[int]{Status: NoRows}
	}

	col := df.Col(schema.Online)
	count := 0
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		if b, err := e.Bool(); err == nil && b {
			count++
		}
	}
	return Stat[int]{Value: count}
}

// MeanAgeByMethod 指定支付方式的平均年龄
func MeanAgeByMethod(df dataframe.DataFrame, schema Schema, method string) Stat[float64] {
	if missing := firstMissing(df, schema.Age, schema.Method); missing != "" {
		return Stat[float64]{Status: MissingColumn, Column: missing}
	}

	methods := df.Col(schema.Method).Records()
	return meanAgeWhere(df, schema, func(i int) bool { return methods[i] == method })
}

// MeanAgeAboveIncome 年收入严格大于阈值的平均年龄
func MeanAgeAboveIncome(df dataframe.DataFrame, schema Schema, threshold float64) Stat[float64] {
	if missing := firstMissing(df, schema.Age, schema.Income); missing != "" {
		return Stat[float64]{Status: MissingColumn, Column: missing}
	}

	incomes := df.Col(schema.Income).Float()
	return meanAgeWhere(df, schema, func(i int) bool { return incomes[i] > threshold })
}

// Summarize 计算统计面板全部数据
func Summarize(df dataframe.DataFrame, schema Schema, cashMethod string, incomeThreshold float64) Summary {
	return Summary{
		Online:    OnlinePurchases(df, schema),
		CashAge:   MeanAgeByMethod(df, schema, cashMethod),
		IncomeAge: MeanAgeAboveIncome(df, schema, incomeThreshold),
	}
}

func meanAgeWhere(df dataframe.DataFrame, schema Schema, keep func(i int) bool) Stat[float64] {
	ages := df.Col(schema.Age).Float()

	selected := make([]float64, 0, len(ages))
	for i, age := range ages {
		if keep(i) {
			selected = append(selected, age)
		}
	}
	if len(selected) == 0 {
		return Stat[float64]{Status: NoRows}
	}
	return Stat[float64]{Value: stat.Mean(selected, nil)}
}

func firstMissing(df dataframe.DataFrame, cols ...string) string {
	for _, c := range cols {
		if !utils.HasColumn(df, c) {
			return c
		}
	}
	return ""
}
