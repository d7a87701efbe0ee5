package dashboard

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/datasource/file"
	"ConsumerSegmentation/src/processor"
	"ConsumerSegmentation/src/reactive"
	"ConsumerSegmentation/src/utils"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/text/message"
)

// Logger 会话使用的日志接口，storage.Logger 满足该接口
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// Env 进程级只读环境，在启动时构造一次后传给所有会话
type Env struct {
	Dataset   *file.Dataset
	Data      *config.DataConfig
	OutputDir string
	Printer   *message.Printer
	Log       Logger
}

// Choices 支付方式复选框的选项：配置中的在前，数据中额外出现的按出现顺序追加
func (e *Env) Choices() []string {
	out := slices.Clone(e.Data.PaymentMethods)
	for _, m := range e.Dataset.Methods {
		if !utils.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// Defaults 新会话的初始输入：全部年龄、全部支付方式、默认聚类数
func (e *Env) Defaults() Inputs {
	return Inputs{
		AgeMin:  e.Dataset.AgeMin,
		AgeMax:  e.Dataset.AgeMax,
		Methods: e.Choices(),
		K:       e.Data.Clusters.Default,
	}
}

// Inputs 三个控件的取值
type Inputs struct {
	AgeMin  float64  `json:"age_min"`
	AgeMax  float64  `json:"age_max"`
	Methods []string `json:"methods"`
	K       int      `json:"k"`
}

type ageRange struct{ lo, hi float64 }

// Session 单个用户的输入和依赖图。mu 保证同一会话同一时间只有一次重算
type Session struct {
	ID string

	mu  sync.Mutex
	env *Env

	age     *reactive.Value[ageRange]
	methods *reactive.Value[[]string]
	k       *reactive.Value[int]

	filtered   *reactive.Calc[dataframe.DataFrame]
	summary    *reactive.Calc[processor.Summary]
	clustering *reactive.Calc[processor.Clustering]
	plot       *reactive.Calc[processor.Image]
	table      *reactive.Calc[processor.Table]
}

func NewSession(id string, env *Env) *Session {
	s := &Session{ID: id, env: env}
	in := env.Defaults()
	schema := env.Dataset.Schema

	s.age = reactive.NewValue(ageRange{in.AgeMin, in.AgeMax})
	s.methods = reactive.NewValue(in.Methods)
	s.k = reactive.NewValue(in.K)

	s.filtered = reactive.NewCalc("filter", func() dataframe.DataFrame {
		r := s.age.Get()
		df, err := processor.Filter(env.Dataset.Frame, schema, processor.Params{
			AgeMin:  r.lo,
			AgeMax:  r.hi,
			Methods: s.methods.Get(),
		})
		if err != nil {
			env.Log.Error(fmt.Sprintf("session %s: filter: %v", s.ID, err))
		}
		return df
	}, s.age, s.methods)

	s.summary = reactive.NewCalc("statistics", func() processor.Summary {
		return processor.Summarize(s.filtered.Get(), schema, env.Data.CashMethod, env.Data.IncomeThreshold)
	}, s.filtered)

	s.clustering = reactive.NewCalc("clustering", func() processor.Clustering {
		c := processor.Cluster(s.filtered.Get(), schema, s.k.Get(), env.Data.Clusters.Seed)
		if c.Status != processor.Clustered {
			env.Log.Debug(fmt.Sprintf("session %s: clustering %s: %s", s.ID, c.Status, c.Reason))
		}
		return c
	}, s.filtered, s.k)

	s.plot = reactive.NewCalc("plot", func() processor.Image {
		labels := env.Data.Labels
		img, err := processor.RenderPlot(s.clustering.Get(), schema, s.PlotPath(), processor.PlotOptions{
			Title:       labels.PlotTitle,
			Alt:         labels.PlotAlt,
			ClusterName: labels.ClusterName,
			Methods:     env.Choices(),
		})
		if err != nil {
			env.Log.Error(fmt.Sprintf("session %s: render plot: %v", s.ID, err))
			img = processor.Image{Alt: labels.PlotAlt}
		}
		if img.Empty() {
			// 没有图片时删掉上一次的结果
			if err := os.Remove(s.PlotPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				env.Log.Warning(fmt.Sprintf("session %s: remove stale plot: %v", s.ID, err))
			}
		}
		return img
	}, s.clustering)

	s.table = reactive.NewCalc("table", func() processor.Table {
		return processor.TableView(s.filtered.Get())
	}, s.filtered)

	stale := func(name string) {
		env.Log.Debug(fmt.Sprintf("session %s: %s stale", s.ID, name))
	}
	s.filtered.OnStale(stale)
	s.summary.OnStale(stale)
	s.clustering.OnStale(stale)
	s.plot.OnStale(stale)
	s.table.OnStale(stale)

	return s
}

// PlotPath 会话独占的图片路径
func (s *Session) PlotPath() string {
	return filepath.Join(s.env.OutputDir, fmt.Sprintf("cluster_plot_%s.png", s.ID))
}

// SetAgeRange 年龄区间限制在数据集范围内，上下限颠倒时交换
func (s *Session) SetAgeRange(lo, hi float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.age.Set(s.normAge(lo, hi))
}

// SetMethods 去掉未知和重复的支付方式，保持选项顺序；空集合合法
func (s *Session) SetMethods(methods []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods.Set(s.normMethods(methods))
}

// SetClusters 聚类数限制在滑块范围内
func (s *Session) SetClusters(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.k.Set(s.normK(k))
}

// Update 一次提交多个控件，只有取值变化的输入会触发重算
func (s *Session) Update(in Inputs) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.normAge(in.AgeMin, in.AgeMax); r != s.age.Get() {
		s.age.Set(r)
	}
	if m := s.normMethods(in.Methods); !slices.Equal(m, s.methods.Get()) {
		s.methods.Set(m)
	}
	if k := s.normK(in.K); k != s.k.Get() {
		s.k.Set(k)
	}
}

func (s *Session) normAge(lo, hi float64) ageRange {
	ds := s.env.Dataset
	lo = clamp(lo, ds.AgeMin, ds.AgeMax)
	hi = clamp(hi, ds.AgeMin, ds.AgeMax)
	if lo > hi {
		lo, hi = hi, lo
	}
	return ageRange{lo, hi}
}

func (s *Session) normMethods(methods []string) []string {
	selected := []string{}
	for _, c := range s.env.Choices() {
		if utils.Contains(methods, c) {
			selected = append(selected, c)
		}
	}
	return selected
}

func (s *Session) normK(k int) int {
	c := s.env.Data.Clusters
	return max(c.Min, min(c.Max, k))
}

// Inputs 当前输入
func (s *Session) Inputs() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs()
}

func (s *Session) inputs() Inputs {
	r := s.age.Get()
	return Inputs{
		AgeMin:  r.lo,
		AgeMax:  r.hi,
		Methods: slices.Clone(s.methods.Get()),
		K:       s.k.Get(),
	}
}

// Snapshot 完成所有失效阶段的重算后返回当前状态
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	df := s.filtered.Get()
	c := s.clustering.Get()
	snap := Snapshot{
		SessionID: s.ID,
		Inputs:    s.inputs(),
		Rows:      df.Nrow(),
		Summary:   s.summary.Get(),
		Cluster: ClusterState{
			Status: c.Status,
			K:      c.K,
			Reason: c.Reason,
		},
		Image: s.plot.Get(),
		Table: s.table.Get(),
	}
	snap.Stats = RenderStats(snap.Summary, s.env.Data, s.env.Printer)
	return snap
}

// PlotPNG 在会话锁内读取当前图片，没有图片时 data 为 nil
func (s *Session) PlotPNG() (processor.Image, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.plot.Get()
	if img.Empty() {
		return img, nil, nil
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return img, nil, fmt.Errorf("read plot: %w", err)
	}
	return img, data, nil
}

// Filtered 当前过滤结果，导出使用
func (s *Session) Filtered() dataframe.DataFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filtered.Get()
}

// Runs 各阶段的重算次数
func (s *Session) Runs() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		s.filtered.Name():   s.filtered.Runs(),
		s.summary.Name():    s.summary.Runs(),
		s.clustering.Name(): s.clustering.Runs(),
		s.plot.Name():       s.plot.Runs(),
		s.table.Name():      s.table.Runs(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
