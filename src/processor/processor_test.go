package processor

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var schema = Schema{
	Age:    "Age",
	Income: "Annual_Income",
	Method: "Payment_Methods",
	Online: "OnlinePurchase",
}

// consumers 12 行样例：年龄 20..64，三种支付方式轮流出现
func consumers() dataframe.DataFrame {
	ages := []float64{20, 24, 28, 32, 36, 40, 44, 48, 52, 56, 60, 64}
	incomes := []float64{12, 15, 18, 21, 40, 45, 50, 55, 90, 95, 100, 105}
	methods := []string{"Cash", "Tcredit", "Tdebit", "Cash", "Tcredit", "Tdebit", "Cash", "Tcredit", "Tdebit", "Cash", "Tcredit", "Tdebit"}
	online := []bool{true, false, true, true, false, false, true, false, true, false, false, true}
	return dataframe.New(
		series.New(ages, series.Float, schema.Age),
		series.New(incomes, series.Float, schema.Income),
		series.New(methods, series.String, schema.Method),
		series.New(online, series.Bool, schema.Online),
	)
}

func rowKeys(df dataframe.DataFrame) []string {
	ages := df.Col(schema.Age).Records()
	methods := df.Col(schema.Method).Records()
	keys := make([]string, len(ages))
	for i := range ages {
		keys[i] = ages[i] + "/" + methods[i]
	}
	sort.Strings(keys)
	return keys
}

func TestFilterMatchesPredicates(t *testing.T) {
	df := consumers()
	tests := []struct {
		name   string
		params Params
	}{
		{"all", Params{AgeMin: 20, AgeMax: 64, Methods: []string{"Cash", "Tcredit", "Tdebit"}}},
		{"inclusive bounds", Params{AgeMin: 24, AgeMax: 48, Methods: []string{"Cash", "Tcredit", "Tdebit"}}},
		{"cash only", Params{AgeMin: 20, AgeMax: 64, Methods: []string{"Cash"}}},
		{"narrow", Params{AgeMin: 30, AgeMax: 50, Methods: []string{"Tdebit", "Cash"}}},
		{"no methods", Params{AgeMin: 20, AgeMax: 64}},
		{"inverted", Params{AgeMin: 50, AgeMax: 30, Methods: []string{"Cash"}}},
		{"unknown method", Params{AgeMin: 20, AgeMax: 64, Methods: []string{"Bitcoin"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(df, schema, tt.params)
			require.NoError(t, err)

			// 逐行判断的期望结果
			ages := df.Col(schema.Age).Float()
			methods := df.Col(schema.Method).Records()
			var want []string
			for i := range ages {
				if ages[i] >= tt.params.AgeMin && ages[i] <= tt.params.AgeMax && contains(tt.params.Methods, methods[i]) {
					want = append(want, df.Col(schema.Age).Elem(i).String()+"/"+methods[i])
				}
			}
			sort.Strings(want)

			if len(want) == 0 {
				assert.Equal(t, 0, got.Nrow())
			} else {
				assert.Equal(t, want, rowKeys(got))
			}
			assert.Equal(t, df.Names(), got.Names())
		})
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestFilterIdempotent(t *testing.T) {
	p := Params{AgeMin: 25, AgeMax: 55, Methods: []string{"Cash", "Tdebit"}}
	once, err := Filter(consumers(), schema, p)
	require.NoError(t, err)
	twice, err := Filter(once, schema, p)
	require.NoError(t, err)

	assert.Equal(t, once.Records(), twice.Records())
}

func TestFilterKeepsOrder(t *testing.T) {
	got, err := Filter(consumers(), schema, Params{AgeMin: 0, AgeMax: 100, Methods: []string{"Tcredit"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{24, 36, 48, 60}, got.Col(schema.Age).Float())
}

func TestFilterMissingColumn(t *testing.T) {
	df := consumers().Drop(schema.Method)
	_, err := Filter(df, schema, Params{AgeMin: 0, AgeMax: 100, Methods: []string{"Cash"}})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestSummarize(t *testing.T) {
	df := consumers()

	s := Summarize(df, schema, "Cash", 20)
	require.True(t, s.Online.OK())
	assert.Equal(t, 6, s.Online.Value)

	// Cash: 20, 32, 44, 56
	require.True(t, s.CashAge.OK())
	assert.InDelta(t, 38.0, s.CashAge.Value, 1e-9)

	// 收入严格大于 20: 32..64 共 9 行
	require.True(t, s.IncomeAge.OK())
	assert.InDelta(t, 48.0, s.IncomeAge.Value, 1e-9)
}

func TestStatisticsPlaceholders(t *testing.T) {
	full := consumers()
	noCash, err := Filter(full, schema, Params{AgeMin: 0, AgeMax: 100, Methods: []string{"Tdebit"}})
	require.NoError(t, err)
	lowIncome, err := Filter(full, schema, Params{AgeMin: 0, AgeMax: 30, Methods: []string{"Cash", "Tcredit", "Tdebit"}})
	require.NoError(t, err)
	empty, err := Filter(full, schema, Params{AgeMin: 0, AgeMax: 100})
	require.NoError(t, err)

	tests := []struct {
		name       string
		df         dataframe.DataFrame
		online     Status
		cashAge    Status
		incomeAge  Status
		missingCol string
	}{
		{"full", full, Available, Available, Available, ""},
		{"no cash rows", noCash, Available, NoRows, Available, ""},
		{"no high income rows", lowIncome, Available, Available, NoRows, ""},
		{"empty view", empty, NoRows, NoRows, NoRows, ""},
		{"online column absent", full.Drop(schema.Online), MissingColumn, Available, Available, schema.Online},
		{"online column absent and empty", empty.Drop(schema.Online), MissingColumn, NoRows, NoRows, schema.Online},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.df, schema, "Cash", 20)
			assert.Equal(t, tt.online, s.Online.Status)
			assert.Equal(t, tt.cashAge, s.CashAge.Status)
			assert.Equal(t, tt.incomeAge, s.IncomeAge.Status)
			assert.Equal(t, tt.missingCol, s.Online.Column)
		})
	}
}

func TestMeanAgeMissingColumns(t *testing.T) {
	df := consumers().Drop(schema.Income)
	s := MeanAgeAboveIncome(df, schema, 20)
	assert.Equal(t, MissingColumn, s.Status)
	assert.Equal(t, schema.Income, s.Column)

	m := MeanAgeByMethod(consumers().Drop(schema.Age), schema, "Cash")
	assert.Equal(t, MissingColumn, m.Status)
	assert.Equal(t, schema.Age, m.Column)
}

func TestClusterDeterministic(t *testing.T) {
	df := consumers()
	for k := MinClusters; k <= MaxClusters; k++ {
		a := Cluster(df, schema, k, 0)
		b := Cluster(df, schema, k, 0)
		require.Equal(t, Clustered, a.Status, "k=%d", k)
		assert.Equal(t, a.Labels, b.Labels, "k=%d", k)

		distinct := map[int]bool{}
		for _, l := range a.Labels {
			distinct[l] = true
		}
		assert.Len(t, distinct, k, "k=%d", k)
	}
}

func TestClusterAppendsColumn(t *testing.T) {
	c := Cluster(consumers(), schema, 3, 0)
	require.Equal(t, Clustered, c.Status)
	require.Contains(t, c.Frame.Names(), ClusterColumn)

	col := c.Frame.Col(ClusterColumn)
	assert.Equal(t, series.Int, col.Type())
	got, err := col.Int()
	require.NoError(t, err)
	assert.Equal(t, c.Labels, got)
	assert.Len(t, c.Centers, 3)

	// 中心画在 (年收入, 年龄) 坐标上
	xys := centerXYs(c)
	require.Len(t, xys, 3)
	for i, center := range c.Centers {
		assert.Equal(t, center[1], xys[i].X)
		assert.Equal(t, center[0], xys[i].Y)
	}
}

func TestClusterDegenerateInputs(t *testing.T) {
	full := consumers()
	five, err := Filter(full, schema, Params{AgeMin: 20, AgeMax: 36, Methods: []string{"Cash", "Tcredit", "Tdebit"}})
	require.NoError(t, err)
	require.Equal(t, 5, five.Nrow())
	empty, err := Filter(full, schema, Params{AgeMin: 20, AgeMax: 64})
	require.NoError(t, err)

	tests := []struct {
		name string
		df   dataframe.DataFrame
		k    int
		want ClusterStatus
	}{
		{"k above row count", five, 10, Degenerate},
		{"k equals row count", five, 5, Clustered},
		{"k below slider", full, 1, Degenerate},
		{"k above slider", full, 11, Degenerate},
		{"empty view", empty, 2, NoData},
		{"missing feature column", full.Drop(schema.Income), 2, NoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cluster(tt.df, schema, tt.k, 0)
			assert.Equal(t, tt.want, c.Status)
			if tt.want != Clustered {
				assert.Nil(t, c.Labels)
				assert.NotEmpty(t, c.Reason)
			}
		})
	}
}

func TestRenderPlot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "cluster_plot_a.png")
	opt := PlotOptions{Title: "Segments", Alt: "segments", Methods: []string{"Cash", "Tcredit", "Tdebit"}}

	img, err := RenderPlot(Cluster(consumers(), schema, 4, 0), schema, path, opt)
	require.NoError(t, err)
	assert.Equal(t, path, img.Path)
	assert.Equal(t, "segments", img.Alt)
	assert.False(t, img.Empty())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, 0)

	// 重新计算覆盖同一个文件，不留临时文件
	_, err = RenderPlot(Cluster(consumers(), schema, 2, 0), schema, path, opt)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRenderPlotWithoutClusters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.png")

	for _, c := range []Clustering{
		{Status: NoData},
		Cluster(consumers(), schema, 11, 0),
	} {
		img, err := RenderPlot(c, schema, path, PlotOptions{Alt: "alt"})
		require.NoError(t, err)
		assert.True(t, img.Empty())
		assert.Equal(t, "alt", img.Alt)
		assert.NoFileExists(t, path)
	}
}

func TestWritePlotUnknownMethod(t *testing.T) {
	// 配置里没有的支付方式也能分配到形状
	var buf bytes.Buffer
	c := Cluster(consumers(), schema, 2, 0)
	require.NoError(t, WritePlot(&buf, c, schema, PlotOptions{Methods: []string{"Cash"}}))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)
}

func TestMethodOrder(t *testing.T) {
	order := methodOrder([]string{"Cash", "Tcredit"}, []string{"Tdebit", "Cash", "Tdebit"})
	assert.Equal(t, map[string]int{"Cash": 0, "Tcredit": 1, "Tdebit": 2}, order)
	assert.Equal(t, []string{"Cash", "Tdebit"}, presentMethods(order, []string{"Tdebit", "Cash"}))
}

func TestTableView(t *testing.T) {
	df, err := Filter(consumers(), schema, Params{AgeMin: 20, AgeMax: 28, Methods: []string{"Cash", "Tcredit", "Tdebit"}})
	require.NoError(t, err)

	tbl := TableView(df)
	assert.Equal(t, []string{schema.Age, schema.Income, schema.Method, schema.Online}, tbl.Columns)
	assert.Equal(t, [][]string{
		{"20", "12", "Cash", "true"},
		{"24", "15", "Tcredit", "false"},
		{"28", "18", "Tdebit", "true"},
	}, tbl.Rows)
	assert.Equal(t, 3, tbl.Len())

	text := TextFrame(df)
	assert.Equal(t, series.String, text.Col(schema.Online).Type())
	assert.Equal(t, []string{"true", "false", "true"}, text.Col(schema.Online).Records())
}

func TestTableViewEmpty(t *testing.T) {
	df, err := Filter(consumers(), schema, Params{AgeMin: 20, AgeMax: 64})
	require.NoError(t, err)

	tbl := TableView(df)
	assert.Equal(t, 0, tbl.Len())
	assert.Len(t, tbl.Columns, 4)
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(consumers(), &buf, "Datos"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Datos")
	require.NoError(t, err)
	assert.Len(t, rows, 13)
	assert.Equal(t, []string{"Cash", "true"}, rows[1][2:])
	assert.Equal(t, []string{"Tcredit", "false"}, rows[2][2:])
}

// 端到端场景：全部 Cash，年龄 20..60，k=2
func TestScenarioAllCash(t *testing.T) {
	ages := []float64{20, 30, 40, 50, 60, 25, 35, 45}
	df := dataframe.New(
		series.New(ages, series.Float, schema.Age),
		series.New([]float64{10, 12, 80, 85, 90, 11, 14, 82}, series.Float, schema.Income),
		series.New([]string{"Cash", "Cash", "Cash", "Cash", "Cash", "Cash", "Cash", "Cash"}, series.String, schema.Method),
		series.New([]bool{true, true, false, true, false, false, true, true}, series.Bool, schema.Online),
	)

	view, err := Filter(df, schema, Params{AgeMin: 20, AgeMax: 60, Methods: []string{"Cash"}})
	require.NoError(t, err)
	assert.Equal(t, df.Records(), view.Records())

	s := Summarize(view, schema, "Cash", 20)
	assert.Equal(t, 5, s.Online.Value)

	c := Cluster(view, schema, 2, 0)
	require.Equal(t, Clustered, c.Status)
	colors, err := clusterColors(c.K)
	require.NoError(t, err)
	assert.Len(t, colors, 2)

	img, err := RenderPlot(c, schema, filepath.Join(t.TempDir(), "p.png"), PlotOptions{})
	require.NoError(t, err)
	assert.FileExists(t, img.Path)
}
