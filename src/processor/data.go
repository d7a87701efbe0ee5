// data.go
package processor

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/utils"
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
)

// ClusterColumn 聚类结果追加到DataFrame时使用的列名
const ClusterColumn = "Cluster"

var (
	ErrMissingColumn = errors.New("column not found")
	ErrNoRows        = errors.New("no rows")
)

// Schema 业务字段在数据集中的列名
type Schema struct {
	Age    string
	Income string
	Method string
	Online string
}

func SchemaFrom(c config.Columns) Schema {
	return Schema{
		Age:    c.Age,
		Income: c.AnnualIncome,
		Method: c.PaymentMethod,
		Online: c.OnlinePurchase,
	}
}

// Required 过滤和聚类必须存在的列
func (s Schema) Required() []string {
	return []string{s.Age, s.Income, s.Method}
}

// Check 返回df中缺失的第一个列
func (s Schema) Check(df dataframe.DataFrame, cols ...string) error {
	for _, c := range cols {
		if !utils.HasColumn(df, c) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return nil
}
