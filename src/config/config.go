package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Server struct {
		Port            int      `json:"port"`             // HTTP 监听端口
		SessionTTL      Duration `json:"session_ttl"`      // 会话空闲多久后回收
		CleanupInterval Duration `json:"cleanup_interval"` // 回收任务执行间隔
		LogLevel        string   `json:"log_level"`        // echo 日志级别 debug|info|warn|error|off
	} `json:"server"`

	DataFile   string `json:"data_file"`   // 数据集路径(.csv / .xlsx)
	Encoding   string `json:"encoding"`    // 数据集字符集(IANA 名称)
	Delimiter  string `json:"delimiter"`   // csv 分隔符
	SheetName  string `json:"sheet_name"`  // xlsx 工作表名，为空时取第一个
	StyleSheet string `json:"style_sheet"` // 页面样式表
	OutputDir  string `json:"output_dir"`  // 聚类图输出目录
	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`
	PidFile    string `json:"pid_file"` // 进程号文件，日志重开工具据此发送 SIGHUP
	Language   string `json:"language"` // 数字格式化使用的语言
}

// Columns 数据集中各业务字段对应的列名
type Columns struct {
	Age            string `json:"age"`
	AnnualIncome   string `json:"annual_income"`
	PaymentMethod  string `json:"payment_method"`
	OnlinePurchase string `json:"online_purchase"`
}

// 聚类数允许的范围
const (
	MinClusters = 2
	MaxClusters = 10

	defaultIncomeThreshold = 20
)

// Clusters 聚类数滑块配置
type Clusters struct {
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Default int    `json:"default"`
	Seed    uint64 `json:"seed"`
}

// Labels 页面上展示的文本
type Labels struct {
	Title       string `json:"title"`
	PlotTitle   string `json:"plot_title"`
	PlotAlt     string `json:"plot_alt"`
	TableTitle  string `json:"table_title"`
	AgeSlider   string `json:"age_slider"`
	Methods     string `json:"methods"`
	ClusterK    string `json:"cluster_k"`
	Online      string `json:"online"`
	CashAge     string `json:"cash_age"`
	IncomeAge   string `json:"income_age"`
	NotFound    string `json:"not_found"` // 含一个 %s，填列名
	ClusterName string `json:"cluster_name"`
}

type DataConfig struct {
	Columns         Columns  `json:"columns"`
	PaymentMethods  []string `json:"payment_methods"`
	CashMethod      string   `json:"cash_method"`
	IncomeThreshold float64  `json:"income_threshold"`
	Clusters        Clusters `json:"clusters"`
	Labels          Labels   `json:"labels"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
)

// LoadConfig 只在进程内加载一次配置，之后的调用返回同一份结果
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, loadErr = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read data config: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("parse Config: %w", err)
		return
	}
	cfg.applyDefaults()
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	// 收入阈值 0 是合法取值，默认值在解析前填入
	dcfg := DataConfig{IncomeThreshold: defaultIncomeThreshold}
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("parse DataConfig: %w", err)
		return
	}
	dcfg.applyDefaults()
	if err := dcfg.Validate(); err != nil {
		errChan <- err
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("configuration partially loaded")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "configuration errors:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// Default 返回仅含默认值的配置，测试和示例使用
func Default() (*Config, *DataConfig) {
	cfg := &Config{}
	cfg.applyDefaults()
	dcfg := &DataConfig{IncomeThreshold: defaultIncomeThreshold}
	dcfg.applyDefaults()
	return cfg, dcfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = Duration(30 * time.Minute)
	}
	if c.Server.CleanupInterval == 0 {
		c.Server.CleanupInterval = Duration(5 * time.Minute)
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.OutputDir == "" {
		c.OutputDir = "output_images"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.PidFile == "" {
		c.PidFile = "app.pid"
	}
	if c.Language == "" {
		c.Language = "en"
	}
}

func (dc *DataConfig) applyDefaults() {
	cols := &dc.Columns
	if cols.Age == "" {
		cols.Age = "Age"
	}
	if cols.AnnualIncome == "" {
		cols.AnnualIncome = "Annual_Income"
	}
	if cols.PaymentMethod == "" {
		cols.PaymentMethod = "Payment_Methods"
	}
	if cols.OnlinePurchase == "" {
		cols.OnlinePurchase = "OnlinePurchase"
	}
	if len(dc.PaymentMethods) == 0 {
		dc.PaymentMethods = []string{"Cash", "Tcredit", "Tdebit"}
	}
	if dc.CashMethod == "" {
		dc.CashMethod = "Cash"
	}
	if dc.Clusters.Min == 0 {
		dc.Clusters.Min = MinClusters
	}
	if dc.Clusters.Max == 0 {
		dc.Clusters.Max = MaxClusters
	}
	if dc.Clusters.Default == 0 {
		dc.Clusters.Default = 6
	}

	l := &dc.Labels
	setDefault(&l.Title, "Consumer segmentation")
	setDefault(&l.PlotTitle, "Segmentation: payment method")
	setDefault(&l.PlotAlt, "Segmentation: payment method")
	setDefault(&l.TableTitle, "Dataset")
	setDefault(&l.AgeSlider, "Age:")
	setDefault(&l.Methods, "Payment methods:")
	setDefault(&l.ClusterK, "Number of clusters")
	setDefault(&l.Online, "Online e-commerce consumers:")
	setDefault(&l.CashAge, "Average age of consumers paying with cash:")
	setDefault(&l.IncomeAge, "Average age of consumers with income above $20,000:")
	setDefault(&l.NotFound, "Error: '%s' not found")
	setDefault(&l.ClusterName, "Cluster %d")
}

// Validate 检查聚类数范围是否自洽且在 [MinClusters, MaxClusters] 内
func (dc *DataConfig) Validate() error {
	c := dc.Clusters
	if c.Min < MinClusters || c.Max > MaxClusters || c.Max < c.Min {
		return fmt.Errorf("invalid clusters range [%d, %d], allowed [%d, %d]", c.Min, c.Max, MinClusters, MaxClusters)
	}
	if c.Default < c.Min || c.Default > c.Max {
		return fmt.Errorf("default clusters %d outside [%d, %d]", c.Default, c.Min, c.Max)
	}
	return nil
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 转回 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
