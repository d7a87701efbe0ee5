package processor

import (
	"ConsumerSegmentation/src/utils"
	"math"

	"github.com/go-gota/gota/dataframe"
)

// Params 用户可调的过滤参数
type Params struct {
	AgeMin  float64
	AgeMax  float64
	Methods []string
}

// Match 判断单行是否满足过滤条件，年龄区间为闭区间
func (p Params) Match(age float64, method string) bool {
	if math.IsNaN(age) {
		return false
	}
	return age >= p.AgeMin && age <= p.AgeMax && utils.Contains(p.Methods, method)
}

// Filter 返回满足年龄区间和支付方式的子表
// 结果行是原表行的子集，顺序不变；空结果是合法结果
func Filter(df dataframe.DataFrame, schema Schema, p Params) (dataframe.DataFrame, error) {
	if err := schema.Check(df, schema.Age, schema.Method); err != nil {
		return dataframe.DataFrame{}, err
	}

	mask := Mask(df, schema, p)
	sub := df.Subset(mask)
	if sub.Err != nil {
		return dataframe.DataFrame{}, sub.Err
	}
	return sub, nil
}

// Mask 计算过滤用的布尔掩码
func Mask(df dataframe.DataFrame, schema Schema, p Params) []bool {
	ages := df.Col(schema.Age).Float()
	methods := df.Col(schema.Method).Records()

	mask := make([]bool, df.Nrow())
	for i := range mask {
		mask[i] = p.Match(ages[i], methods[i])
	}
	return mask
}
