package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfig
)

const (
	// FileName 是默认在 cwd 下查找的配置文件名（可选）。
	FileName = "inkbatch.json"
	// DotEnvName 是默认在 cwd 下读取的凭据文件（可选）。
	DotEnvName = ".env"

	DefaultTimeout  = 60 * time.Second
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// 凭据只从环境变量（或 .env）读取，不进入配置文件。
const (
	EnvGoogleAPIKey      = "GOOGLE_API_KEY"
	EnvGoogleCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvAzureEndpoint     = "AZURE_VISION_ENDPOINT"
	EnvAzureKey          = "AZURE_VISION_KEY"
	EnvS3AccessKey       = "INKBATCH_S3_ACCESS_KEY"
	EnvS3SecretKey       = "INKBATCH_S3_SECRET_KEY"
)

// CLIArgs 是命令行入口，保留“是否显式指定”的信息，保证 CLI 可以覆盖配置文件里的 true。
type CLIArgs struct {
	ConfigPath string

	Services []string
	BaseName string
	FromFile string
	Output   string
	Threads  string

	Extended    bool
	ExtendedSet bool

	Recursive    bool
	RecursiveSet bool

	Quiet bool
	Debug bool

	MetricsFile string
	RedisURL    string
	NoCache     bool
}

// FileConfig 对应 inkbatch.json 的解析结构。
type FileConfig struct {
	Services  []string `json:"services"`
	BaseName  string   `json:"base_name"`
	Output    string   `json:"output"`
	Threads   string   `json:"threads"`
	Extended  *bool    `json:"extended"`
	Recursive *bool    `json:"recursive"`

	Proxy          *ProxyConfig `json:"proxy"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	ProbeURL       string       `json:"probe_url"`

	Cache     *CacheConfig     `json:"cache"`
	S3        *S3Config        `json:"s3"`
	Google    *GoogleConfig    `json:"google"`
	Microsoft *MicrosoftConfig `json:"microsoft"`
	Tesseract *TesseractConfig `json:"tesseract"`
	Log       *LogConfig       `json:"log"`

	MetricsFile string `json:"metrics_file"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type CacheConfig struct {
	Disabled bool   `json:"disabled"`
	Dir      string `json:"dir"`
	RedisURL string `json:"redis_url"`
	TTLHours int    `json:"ttl_hours"`
	ReadOnly bool   `json:"read_only"`
}

type S3Config struct {
	Endpoint string `json:"endpoint"`
	Region   string `json:"region"`
	UseSSL   *bool  `json:"use_ssl"`
}

// GoogleConfig.Endpoint 用于区域端点（例如 https://eu-vision.googleapis.com/）。
type GoogleConfig struct {
	Endpoint string `json:"endpoint"`
}

type MicrosoftConfig struct {
	Endpoint string `json:"endpoint"`
}

type TesseractConfig struct {
	Languages []string          `json:"languages"`
	Variables map[string]string `json:"variables"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// EffectiveConfig 是合并后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Run       domain.RunConfig
	Services  []string
	Recursive bool
	Quiet     bool

	ProxyURL string
	Timeout  time.Duration
	ProbeURL string

	// CacheDir 为空表示不使用文件缓存；RedisURL 非空时优先使用 Redis。
	CacheDir      string
	RedisURL      string
	CacheTTL      time.Duration
	CacheReadOnly bool

	S3 S3

	Google    Google
	Microsoft Microsoft
	Tesseract Tesseract

	LogLevel  string
	LogFormat string

	MetricsFile string

	// Source 记录实际读取的配置文件（未读取为空）。
	Source string
}

type S3 struct {
	Endpoint  string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
}

type Google struct {
	APIKey          string
	CredentialsFile string
	Endpoint        string
}

type Microsoft struct {
	Endpoint string
	Key      string
}

type Tesseract struct {
	Languages []string
	Variables map[string]string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Env 是环境变量查找函数（测试可注入）。
type Env func(key string) string

// LoadEnv 返回“进程环境优先、其次 <cwd>/.env”的查找函数。
// .env 不存在不算错误；存在但无法解析则返回 config_invalid。
func LoadEnv(cwd string) (Env, error) {
	p := filepath.Join(cwd, DotEnvName)
	vals, err := godotenv.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			vals = nil
		} else {
			return nil, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vals[key]
	}, nil
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则：
// 1) --config 指定：必须存在
// 2) 否则尝试 <cwd>/inkbatch.json（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认；凭据只来自 env。
func LoadEffective(cwd string, cli CLIArgs, env Env) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	if env == nil {
		env = func(string) string { return "" }
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	return merge(cwdAbs, cli, fc, cfgPath, env)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string, env Env) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{Source: cfgPath, Quiet: cli.Quiet}

	// services：CLI > config（两者都为空时由 selection 报 config_invalid）
	eff.Services = append([]string(nil), fc.Services...)
	if len(cli.Services) > 0 {
		eff.Services = append([]string(nil), cli.Services...)
	}

	eff.Run = domain.RunConfig{
		BaseName:  pick(cli.BaseName, fc.BaseName),
		FromFile:  strings.TrimSpace(cli.FromFile),
		OutputDir: pick(cli.Output, fc.Output),
		Threads:   pick(cli.Threads, fc.Threads),
	}
	if eff.Run.Threads == "" {
		eff.Run.Threads = domain.ThreadsAuto
	}
	if strings.ContainsAny(eff.Run.BaseName, `/\`) {
		return EffectiveConfig{}, invalid("base_name 不能包含路径分隔符：%q", eff.Run.BaseName)
	}
	if eff.Run.FromFile != "" {
		eff.Run.FromFile = absCleanFrom(cwdAbs, eff.Run.FromFile)
	}
	if eff.Run.OutputDir != "" && !isS3(eff.Run.OutputDir) {
		eff.Run.OutputDir = absCleanFrom(cwdAbs, eff.Run.OutputDir)
	}

	eff.Run.Extended = boolOr(cli.ExtendedSet, cli.Extended, fc.Extended)
	eff.Recursive = boolOr(cli.RecursiveSet, cli.Recursive, fc.Recursive)

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid("proxy.url 缺少 scheme 或 host：%q", eff.ProxyURL)
		}
	}

	if fc.TimeoutSeconds < 0 {
		return EffectiveConfig{}, invalid("timeout_seconds 不能为负数")
	}
	eff.Timeout = DefaultTimeout
	if fc.TimeoutSeconds > 0 {
		eff.Timeout = time.Duration(fc.TimeoutSeconds) * time.Second
	}
	eff.ProbeURL = strings.TrimSpace(fc.ProbeURL)
	if eff.ProbeURL != "" {
		if err := httpURL(eff.ProbeURL); err != nil {
			return EffectiveConfig{}, invalid("probe_url %v", err)
		}
	}

	// cache：默认使用 <cwd>/.inkbatch-cache；--no-cache 或 cache.disabled 关闭。
	eff.CacheTTL = DefaultCacheTTL
	eff.CacheDir = filepath.Join(cwdAbs, ".inkbatch-cache")
	if c := fc.Cache; c != nil {
		if c.TTLHours < 0 {
			return EffectiveConfig{}, invalid("cache.ttl_hours 不能为负数")
		}
		if c.TTLHours > 0 {
			eff.CacheTTL = time.Duration(c.TTLHours) * time.Hour
		}
		if strings.TrimSpace(c.Dir) != "" {
			eff.CacheDir = absCleanFrom(cwdAbs, c.Dir)
		}
		eff.RedisURL = strings.TrimSpace(c.RedisURL)
		eff.CacheReadOnly = c.ReadOnly
		if c.Disabled {
			eff.CacheDir = ""
			eff.RedisURL = ""
		}
	}
	if strings.TrimSpace(cli.RedisURL) != "" {
		eff.RedisURL = strings.TrimSpace(cli.RedisURL)
	}
	if cli.NoCache {
		eff.CacheDir = ""
		eff.RedisURL = ""
	}

	eff.S3 = S3{
		AccessKey: env(EnvS3AccessKey),
		SecretKey: env(EnvS3SecretKey),
		UseSSL:    true,
	}
	if s := fc.S3; s != nil {
		eff.S3.Endpoint = strings.TrimSpace(s.Endpoint)
		eff.S3.Region = strings.TrimSpace(s.Region)
		if s.UseSSL != nil {
			eff.S3.UseSSL = *s.UseSSL
		}
	}
	if isS3(eff.Run.OutputDir) && (eff.S3.AccessKey == "") != (eff.S3.SecretKey == "") {
		return EffectiveConfig{}, invalid("%s 与 %s 必须同时设置", EnvS3AccessKey, EnvS3SecretKey)
	}

	eff.Google = Google{
		APIKey:          strings.TrimSpace(env(EnvGoogleAPIKey)),
		CredentialsFile: strings.TrimSpace(env(EnvGoogleCredentials)),
	}
	if fc.Google != nil {
		eff.Google.Endpoint = strings.TrimSpace(fc.Google.Endpoint)
		if eff.Google.Endpoint != "" {
			if err := httpURL(eff.Google.Endpoint); err != nil {
				return EffectiveConfig{}, invalid("google.endpoint %v", err)
			}
		}
	}
	eff.Microsoft = Microsoft{
		Endpoint: strings.TrimSpace(env(EnvAzureEndpoint)),
		Key:      strings.TrimSpace(env(EnvAzureKey)),
	}
	if fc.Microsoft != nil && eff.Microsoft.Endpoint == "" {
		eff.Microsoft.Endpoint = strings.TrimSpace(fc.Microsoft.Endpoint)
	}
	if fc.Tesseract != nil {
		eff.Tesseract.Languages = append([]string(nil), fc.Tesseract.Languages...)
		if len(fc.Tesseract.Variables) > 0 {
			eff.Tesseract.Variables = make(map[string]string, len(fc.Tesseract.Variables))
			for k, v := range fc.Tesseract.Variables {
				k = strings.TrimSpace(k)
				if k == "" {
					return EffectiveConfig{}, invalid("tesseract.variables 不能包含空变量名")
				}
				eff.Tesseract.Variables[k] = v
			}
		}
	}

	// 未开启 --debug 时只输出 warn 以上的日志。
	eff.LogLevel = "warn"
	if fc.Log != nil {
		eff.LogLevel = pick(fc.Log.Level, "warn")
		eff.LogFormat = strings.TrimSpace(fc.Log.Format)
	}
	if cli.Debug {
		eff.LogLevel = "debug"
	}
	switch strings.ToLower(eff.LogFormat) {
	case "", "text", "json":
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 text 或 json，实际是 %q", eff.LogFormat)
	}

	eff.MetricsFile = pick(cli.MetricsFile, fc.MetricsFile)
	if eff.MetricsFile != "" {
		eff.MetricsFile = absCleanFrom(cwdAbs, eff.MetricsFile)
	}

	return eff, nil
}

// pick 返回第一个非空（去空白后）的值。
func pick(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func boolOr(cliSet, cliVal bool, fileVal *bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return false
}

func isS3(spec string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(spec)), "s3://")
}

func httpURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("无效：%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件；exists 表示文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
