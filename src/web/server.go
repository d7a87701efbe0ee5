package web

import (
	"ConsumerSegmentation/src/dashboard"
	"embed"
	"html/template"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// LogSource 可订阅的日志，storage.Logger 满足该接口
type LogSource interface {
	io.Writer
	Subscribe() <-chan string
	Unsubscribe(sub <-chan string)
}

// Deps 页面依赖的进程级对象
type Deps struct {
	Env      *dashboard.Env
	Registry *dashboard.Registry
	Style    *StyleSheet
	Logs     LogSource
}

type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// BuildServer 创建 echo 实例并注册所有路由
func BuildServer(deps Deps, loglevel string) (*echo.Echo, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &Template{templates: tmpl}
	if deps.Logs != nil {
		e.Logger.SetOutput(deps.Logs)
	}
	SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(LogHandlerFunc)

	// Shutdown 不会取消请求的 context，流式的 /logs 需要单独通知
	done := make(chan struct{})
	var once sync.Once
	e.Server.RegisterOnShutdown(func() { once.Do(func() { close(done) }) })

	h := &handlers{deps: deps, done: done}
	e.GET("/", h.page)
	e.GET("/plot.png", h.plot)
	e.GET("/styles.css", h.styles)
	e.GET("/export.xlsx", h.export)
	e.GET("/api/state", h.state)
	e.GET("/logs", h.logs)

	return e, nil
}

// LogHandlerFunc 记录每个请求的开始和结束
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Debugf("< request @[%s] %s %s", BEGIN, meth, path)

		var err error
		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response status = %d (for request %s %s) in %v / error = %v",
				c.Response().Status, meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

func SetLevel(e *echo.Echo, loglevel string) {
	switch strings.ToLower(loglevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "warn", "":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
