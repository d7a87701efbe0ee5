package web

import (
	"ConsumerSegmentation/src/config"
	"ConsumerSegmentation/src/dashboard"
	"ConsumerSegmentation/src/processor"
	"ConsumerSegmentation/src/utils"
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	sessionCookie = "sid"
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var funcMap = template.FuncMap{
	"num": utils.FormatFloat,
	"has": utils.Contains[string],
}

type handlers struct {
	deps Deps
	done <-chan struct{} // 服务器开始关闭时关闭
}

// pageData 模板数据
type pageData struct {
	Labels  config.Labels
	Snap    dashboard.Snapshot
	AgeMin  float64
	AgeMax  float64
	Choices []string
	KMin    int
	KMax    int
	Stamp   int64
}

// session 按 cookie 取会话，没有或已被回收时新建并下发 cookie
func (h *handlers) session(c echo.Context) *dashboard.Session {
	id := ""
	if ck, err := c.Cookie(sessionCookie); err == nil {
		id = ck.Value
	}

	s, created := h.deps.Registry.GetOrCreate(id)
	if created {
		c.SetCookie(&http.Cookie{
			Name:     sessionCookie,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

// existing 只查找已有会话
func (h *handlers) existing(c echo.Context) (*dashboard.Session, bool) {
	ck, err := c.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	if !h.deps.Registry.Touch(ck.Value) {
		return nil, false
	}
	return h.deps.Registry.Get(ck.Value)
}

// applyQuery 把查询参数写入会话输入
//
//	age_min, age_max, k: 出现且能解析时才覆盖
//	methods: 可重复；表单提交(submitted)时缺省表示一个都没选
func applyQuery(c echo.Context, s *dashboard.Session) {
	in := s.Inputs()
	q := c.QueryParams()

	if v, err := strconv.ParseFloat(q.Get("age_min"), 64); err == nil {
		in.AgeMin = v
	}
	if v, err := strconv.ParseFloat(q.Get("age_max"), 64); err == nil {
		in.AgeMax = v
	}
	if v, err := strconv.Atoi(q.Get("k")); err == nil {
		in.K = v
	}
	if methods, ok := q["methods"]; ok {
		in.Methods = methods
	} else if q.Has("submitted") {
		in.Methods = []string{}
	}

	s.Update(in)
}

func (h *handlers) page(c echo.Context) error {
	s := h.session(c)
	applyQuery(c, s)
	snap := s.Snapshot()

	env := h.deps.Env
	data := pageData{
		Labels:  env.Data.Labels,
		Snap:    snap,
		AgeMin:  env.Dataset.AgeMin,
		AgeMax:  env.Dataset.AgeMax,
		Choices: env.Choices(),
		KMin:    env.Data.Clusters.Min,
		KMax:    env.Data.Clusters.Max,
		Stamp:   time.Now().UnixNano(),
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Render(http.StatusOK, "index.html", data)
}

func (h *handlers) state(c echo.Context) error {
	s := h.session(c)
	applyQuery(c, s)
	return c.JSON(http.StatusOK, s.Snapshot())
}

func (h *handlers) plot(c echo.Context) error {
	s, ok := h.existing(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no session")
	}
	_, data, err := s.PlotPNG()
	if err != nil {
		return err
	}
	if data == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no image")
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", data)
}

func (h *handlers) styles(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/css; charset=utf-8", h.deps.Style.Bytes())
}

func (h *handlers) export(c echo.Context) error {
	s, ok := h.existing(c)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no session")
	}

	var buf bytes.Buffer
	if err := processor.ExportXLSX(s.Filtered(), &buf, "Datos"); err != nil {
		return fmt.Errorf("export session %s: %w", s.ID, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="consumers.xlsx"`)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

// logs 以 chunked 文本持续推送日志，客户端断开时退出
func (h *handlers) logs(c echo.Context) error {
	if h.deps.Logs == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	logChan := h.deps.Logs.Subscribe()
	defer h.deps.Logs.Unsubscribe(logChan)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprint(resp, msg); err != nil {
				return nil
			}
			resp.Flush()
		case <-c.Request().Context().Done():
			return nil
		case <-h.done:
			return nil
		}
	}
}
