package processor

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Image 可视化阶段的输出，Path 为空表示没有图片
type Image struct {
	Path string `json:"path,omitempty"`
	Alt  string `json:"alt"`
}

func (i Image) Empty() bool { return i.Path == "" }

// PlotOptions 出图参数
type PlotOptions struct {
	Title       string
	Alt         string
	XLabel      string
	YLabel      string
	ClusterName string   // 图例中簇的名称格式，含一个 %d
	Methods     []string // 支付方式的形状按此顺序分配
	Width       vg.Length
	Height      vg.Length
	LegendWidth vg.Length
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 5 * vg.Inch
	}
	if o.LegendWidth == 0 {
		o.LegendWidth = 1.6 * vg.Inch
	}
	if o.ClusterName == "" {
		o.ClusterName = "Cluster %d"
	}
	return o
}

// 不同支付方式使用的点形状
var methodGlyphs = []draw.GlyphDrawer{
	draw.CircleGlyph{},
	draw.TriangleGlyph{},
	draw.SquareGlyph{},
	draw.CrossGlyph{},
	draw.PlusGlyph{},
	draw.PyramidGlyph{},
	draw.RingGlyph{},
	draw.BoxGlyph{},
}

// RenderPlot 画散点图(x=年收入, y=年龄)并写入path，覆盖旧文件
// 聚类未成功时不出图，返回空Image
func RenderPlot(c Clustering, schema Schema, path string, opt PlotOptions) (Image, error) {
	if c.Status != Clustered {
		return Image{Alt: opt.Alt}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Image{Alt: opt.Alt}, fmt.Errorf("create output dir: %w", err)
	}

	// 先写临时文件再改名，避免读到写了一半的图片
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plot-*.png")
	if err != nil {
		return Image{Alt: opt.Alt}, err
	}
	defer os.Remove(tmp.Name())

	if err := WritePlot(tmp, c, schema, opt); err != nil {
		tmp.Close()
		return Image{Alt: opt.Alt}, err
	}
	if err := tmp.Close(); err != nil {
		return Image{Alt: opt.Alt}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Image{Alt: opt.Alt}, fmt.Errorf("replace %s: %w", path, err)
	}

	return Image{Path: path, Alt: opt.Alt}, nil
}

// WritePlot 把散点图以PNG编码写入w
func WritePlot(w io.Writer, c Clustering, schema Schema, opt PlotOptions) error {
	if c.Status != Clustered {
		return fmt.Errorf("nothing to plot: %s", c.Status)
	}
	opt = opt.withDefaults()

	colors, err := clusterColors(c.K)
	if err != nil {
		return err
	}

	incomes := c.Frame.Col(schema.Income).Float()
	ages := c.Frame.Col(schema.Age).Float()
	methods := c.Frame.Col(schema.Method).Records()
	order := methodOrder(opt.Methods, methods)

	// 按 (簇, 支付方式) 分组，每组一个散点图层
	type group struct{ cluster, method int }
	groups := map[group]plotter.XYs{}
	for i, label := range c.Labels {
		g := group{cluster: label, method: order[methods[i]]}
		groups[g] = append(groups[g], plotter.XY{X: incomes[i], Y: ages[i]})
	}

	p := plot.New()
	p.Title.Text = opt.Title
	p.X.Label.Text = firstNonEmpty(opt.XLabel, schema.Income)
	p.Y.Label.Text = firstNonEmpty(opt.YLabel, schema.Age)
	p.Add(plotter.NewGrid())

	for cl := 0; cl < c.K; cl++ {
		for m := 0; m < len(order); m++ {
			xys, ok := groups[group{cluster: cl, method: m}]
			if !ok {
				continue
			}
			s, err := plotter.NewScatter(xys)
			if err != nil {
				return fmt.Errorf("scatter cluster %d: %w", cl, err)
			}
			s.GlyphStyle = glyphStyle(colors[cl], m)
			p.Add(s)
		}
	}

	// 簇中心
	centers, err := plotter.NewScatter(centerXYs(c))
	if err != nil {
		return fmt.Errorf("scatter centers: %w", err)
	}
	centers.GlyphStyle = draw.GlyphStyle{
		Color:  color.Black,
		Radius: vg.Points(6),
		Shape:  draw.CrossGlyph{},
	}
	p.Add(centers)

	// 图例画在数据区右侧单独的一栏
	legend := plot.NewLegend()
	legend.Top = true
	legend.Left = true
	legend.XOffs = vg.Points(6)
	for cl := 0; cl < c.K; cl++ {
		legend.Add(fmt.Sprintf(opt.ClusterName, cl), glyphThumb{glyphStyle(colors[cl], 0)})
	}
	for _, name := range presentMethods(order, methods) {
		legend.Add(name, glyphThumb{glyphStyle(color.Gray{Y: 90}, order[name])})
	}

	img := vgimg.New(opt.Width, opt.Height)
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, -opt.LegendWidth, 0, 0))
	legend.Draw(draw.Crop(dc, opt.Width-opt.LegendWidth, 0, 0, 0))

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// centerXYs 簇中心的坐标，与散点一致取 x=年收入, y=年龄
func centerXYs(c Clustering) plotter.XYs {
	xys := make(plotter.XYs, len(c.Centers))
	for i, center := range c.Centers {
		xys[i] = plotter.XY{X: center[1], Y: center[0]}
	}
	return xys
}

// glyphThumb 图例中只画一个点
type glyphThumb struct {
	style draw.GlyphStyle
}

func (g glyphThumb) Thumbnail(c *draw.Canvas) {
	c.DrawGlyph(g.style, c.Center())
}

func glyphStyle(col color.Color, method int) draw.GlyphStyle {
	return draw.GlyphStyle{
		Color:  col,
		Radius: vg.Points(3.5),
		Shape:  methodGlyphs[method%len(methodGlyphs)],
	}
}

// clusterColors 每个簇一个颜色，brewer 调色板至少 3 色
func clusterColors(k int) ([]color.Color, error) {
	n := k
	if n < 3 {
		n = 3
	}
	pal, err := brewer.GetPalette(brewer.TypeQualitative, "Paired", n)
	if err != nil {
		return nil, fmt.Errorf("palette for %d clusters: %w", k, err)
	}
	return pal.Colors()[:k], nil
}

// methodOrder 支付方式到形状编号的映射；配置中没有的按出现顺序追加
func methodOrder(configured, observed []string) map[string]int {
	order := make(map[string]int, len(configured))
	for _, m := range configured {
		if _, ok := order[m]; !ok {
			order[m] = len(order)
		}
	}
	for _, m := range observed {
		if _, ok := order[m]; !ok {
			order[m] = len(order)
		}
	}
	return order
}

// presentMethods 只列出实际出现过的支付方式，按形状编号排序
func presentMethods(order map[string]int, observed []string) []string {
	names := make([]string, len(order))
	for _, m := range observed {
		names[order[m]] = m
	}
	present := names[:0]
	for _, name := range names {
		if name != "" {
			present = append(present, name)
		}
	}
	return present
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
