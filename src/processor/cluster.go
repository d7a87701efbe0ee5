package processor

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/processor/kmeans"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 聚类数滑块的上下限
const (
	MinClusters = config.MinClusters
	MaxClusters = config.MaxClusters
)

// ClusterStatus 聚类阶段的结果类型
type ClusterStatus int

const (
	Clustered  ClusterStatus = iota
	NoData                   // 过滤结果为空
	Degenerate               // k 超出范围或大于行数，未调用算法
)

func (s ClusterStatus) String() string {
	switch s {
	case Clustered:
		return "clustered"
	case NoData:
		return "no_data"
	case Degenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

func (s ClusterStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Clustering 聚类阶段输出；Status 不为 Clustered 时可视化阶段不出图
type Clustering struct {
	Status  ClusterStatus
	K       int
	Reason  string
	Frame   dataframe.DataFrame // 追加了 Cluster 列的过滤结果
	Labels  []int
	Centers [][]float64 // 每个中心为 [age, income]
}

// Cluster 以 (年龄, 年收入) 为特征对过滤结果做 k-means
func Cluster(df dataframe.DataFrame, schema Schema, k int, seed uint64) Clustering {
	if err := schema.Check(df, schema.Age, schema.Income); err != nil {
		return Clustering{Status: NoData, K: k, Reason: err.Error()}
	}

	rows := df.Nrow()
	switch {
	case rows == 0:
		return Clustering{Status: NoData, K: k, Reason: ErrNoRows.Error()}
	case k < MinClusters || k > MaxClusters:
		return Clustering{Status: Degenerate, K: k, Reason: fmt.Sprintf("k=%d outside [%d, %d]", k, MinClusters, MaxClusters)}
	case k > rows:
		return Clustering{Status: Degenerate, K: k, Reason: fmt.Sprintf("k=%d exceeds %d rows", k, rows)}
	}

	points := Features(df, schema)
	res, err := kmeans.Fit(points, kmeans.Options{K: k, Seed: seed})
	if err != nil {
		return Clustering{Status: Degenerate, K: k, Reason: err.Error()}
	}

	frame := df.Mutate(series.New(res.Labels, series.Int, ClusterColumn))
	if frame.Err != nil {
		return Clustering{Status: Degenerate, K: k, Reason: frame.Err.Error()}
	}

	return Clustering{
		Status:  Clustered,
		K:       k,
		Frame:   frame,
		Labels:  res.Labels,
		Centers: res.Centers,
	}
}

// Features 返回每行的 [age, income]
func Features(df dataframe.DataFrame, schema Schema) [][]float64 {
	ages := df.Col(schema.Age).Float()
	incomes := df.Col(schema.Income).Float()

	points := make([][]float64, len(ages))
	for i := range ages {
		points[i] = []float64{ages[i], incomes[i]}
	}
	return points
}
