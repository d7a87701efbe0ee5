// Package kmeans wraps github.com/pointlander/product/kmeans with a fixed
// seed schedule. The same points, k and seed always give the same labels.
package kmeans

import (
	"errors"
	"fmt"
	"math"

	product "github.com/pointlander/product/kmeans"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidK     = errors.New("kmeans: k must be at least 1")
	ErrTooFewPoints = errors.New("kmeans: fewer points than clusters")
	ErrDimension    = errors.New("kmeans: points have different dimensions")
)

// Options 聚类参数，零值字段使用默认值
type Options struct {
	K     int
	Seed  uint64
	NInit int // 依次使用 Seed, Seed+1, ... 运行的次数，取惯性最小的一次
}

const defaultNInit = 10

// Result 聚类结果
type Result struct {
	Labels  []int
	Centers [][]float64
	Inertia float64 // 各点到所属中心距离平方和
	Seed    int64   // 被选中那次运行的种子
}

// Fit 对points做k-means聚类
// 只要 len(points) >= k，结果中 k 个标签都会出现
func Fit(points [][]float64, opt Options) (Result, error) {
	if opt.NInit <= 0 {
		opt.NInit = defaultNInit
	}
	if opt.K < 1 {
		return Result{}, ErrInvalidK
	}
	if len(points) < opt.K {
		return Result{}, fmt.Errorf("%w: %d points, k=%d", ErrTooFewPoints, len(points), opt.K)
	}
	dim := len(points[0])
	for _, p := range points {
		if len(p) != dim {
			return Result{}, ErrDimension
		}
	}

	best := Result{Inertia: math.Inf(1)}
	var lastErr error
	for run := 0; run < opt.NInit; run++ {
		seed := int64(opt.Seed) + int64(run)
		labels, _, err := product.Kmeans(seed, points, opt.K, product.SquaredEuclideanDistance, -1)
		if err != nil {
			lastErr = err
			continue
		}
		res, err := finish(points, labels, opt.K)
		if err != nil {
			lastErr = err
			continue
		}
		if res.Inertia < best.Inertia {
			res.Seed = seed
			best = res
		}
	}
	if best.Labels == nil {
		return Result{}, fmt.Errorf("kmeans: no successful run: %w", lastErr)
	}
	return best, nil
}

// finish 补齐空簇并按标签重新计算中心和惯性
func finish(points [][]float64, raw []int, k int) (Result, error) {
	if len(raw) != len(points) {
		return Result{}, fmt.Errorf("kmeans: %d labels for %d points", len(raw), len(points))
	}
	labels := make([]int, len(raw))
	for i, l := range raw {
		if l < 0 || l >= k {
			return Result{}, fmt.Errorf("kmeans: label %d outside [0, %d)", l, k)
		}
		labels[i] = l
	}

	centers := means(points, labels, k)
	fillEmpty(points, centers, labels, k)
	centers = means(points, labels, k)

	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}
	return Result{Labels: labels, Centers: centers, Inertia: inertia}, nil
}

// fillEmpty 空簇取成员数大于1的簇中离中心最远的点
func fillEmpty(points, centers [][]float64, labels []int, k int) {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	for j := 0; j < k; j++ {
		if counts[j] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] < 2 {
				continue
			}
			if d := sqDist(p, centers[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			return
		}
		counts[labels[far]]--
		labels[far] = j
		counts[j] = 1
		centers[j] = append([]float64(nil), points[far]...)
	}
}

// means 空簇的中心为 nil
func means(points [][]float64, labels []int, k int) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, k)
	counts := make([]float64, k)
	for i, p := range points {
		l := labels[i]
		if sums[l] == nil {
			sums[l] = make([]float64, dim)
		}
		floats.Add(sums[l], p)
		counts[l]++
	}
	for j := range sums {
		if counts[j] > 0 {
			floats.Scale(1/counts[j], sums[j])
		}
	}
	return sums
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
