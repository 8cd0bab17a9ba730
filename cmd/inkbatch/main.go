package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}
	a := &app{stdout: os.Stdout, stderr: os.Stderr, cwd: cwd}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := a.main(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// app 持有进程级的输入输出，便于在测试中整体驱动 CLI。
type app struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string
}

func (a *app) main(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		a.printUsage()
		return 0
	}

	switch args[0] {
	case "run":
		return a.runCmd(ctx, args[1:])
	case "services":
		return a.servicesCmd(ctx)
	default:
		fmt.Fprintf(a.stderr, "未知命令：%q\n\n", args[0])
		a.printUsage()
		return 2
	}
}

func (a *app) runCmd(ctx context.Context, args []string) int {
	for _, s := range args {
		if isHelp(s) {
			a.printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(a.stderr, "参数错误：%v\n\n", err)
		a.printRunUsage()
		return 2
	}

	rep, err := a.execute(ctx, ra)
	if err != nil {
		a.fatal(err)
		return 1
	}
	a.emitReport(rep)
	return 0
}

// fatal 输出一行错误信息（开始工作前的失败）。
func (a *app) fatal(err error) {
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		msg = de.Msg
		if de.Err != nil {
			msg += "：" + de.Err.Error()
		}
	}
	fmt.Fprintf(a.stderr, "错误：%s\n", msg)
}

type runArgs struct {
	Targets []string

	ConfigPath string
	Services   []string
	BaseName   string
	FromFile   string
	Output     string
	Threads    string

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

// valueFlags 是需要一个参数值的选项（短名 -> 长名）。
var valueFlags = map[string]string{
	"-s": "--service",
	"-b": "--base-name",
	"-f": "--from-file",
	"-o": "--output",
	"-t": "--threads",
	"-c": "--config",
}

var boolFlags = map[string]string{
	"-e": "--extended",
	"-r": "--recursive",
	"-q": "--quiet",
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			ra.Targets = append(ra.Targets, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			ra.Targets = append(ra.Targets, a)
			continue
		}

		name, val, hasVal := strings.Cut(a, "=")
		if long, ok := valueFlags[name]; ok {
			name = long
		}
		if long, ok := boolFlags[name]; ok {
			name = long
		}

		switch name {
		case "--service", "--base-name", "--from-file", "--output", "--threads", "--config",
			"--metrics-file", "--redis":
			if !hasVal {
				if i+1 >= len(args) {
					return runArgs{}, fmt.Errorf("%s 需要一个值", name)
				}
				i++
				val = args[i]
			}
			if strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("%s 不能为空", name)
			}
			switch name {
			case "--service":
				ra.Services = append(ra.Services, val)
			case "--base-name":
				ra.BaseName = val
			case "--from-file":
				ra.FromFile = val
			case "--output":
				ra.Output = val
			case "--threads":
				ra.Threads = val
			case "--config":
				ra.ConfigPath = val
			case "--metrics-file":
				ra.MetricsFile = val
			case "--redis":
				ra.RedisURL = val
			}
		case "--extended", "--recursive":
			v := true
			if hasVal {
				switch val {
				case "true":
				case "false":
					v = false
				default:
					return runArgs{}, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, val)
				}
			}
			if name == "--extended" {
				ra.Extended, ra.ExtendedSet = v, true
			} else {
				ra.Recursive, ra.RecursiveSet = v, true
			}
		case "--quiet", "--debug", "--no-cache":
			if hasVal {
				return runArgs{}, fmt.Errorf("%s 不接受参数值", name)
			}
			switch name {
			case "--quiet":
				ra.Quiet = true
			case "--debug":
				ra.Debug = true
			case "--no-cache":
				ra.NoCache = true
			}
		default:
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		}
	}

	if len(ra.Targets) == 0 && ra.FromFile == "" {
		return runArgs{}, errors.New("需要至少一个目标（文件、目录或 URL），或使用 --from-file")
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (a *app) printUsage() {
	fmt.Fprint(a.stdout, `用法：
  inkbatch run [targets...] [选项]
  inkbatch services

命令：
  run       把图片/URL 提交给 HTR service，并写出识别结果
  services  列出可用的 service

使用 "inkbatch run --help" 查看详细说明。
`)
}

func (a *app) printRunUsage() {
	fmt.Fprint(a.stdout, `用法：
  inkbatch run [targets...] [选项]

targets 可以是图片文件、目录（按扩展名筛选图片）或 http/https URL。

选项：
  -s, --service NAME     使用的 service（可重复或逗号分隔；all 表示全部）
  -b, --base-name NAME   输出文件的 base 名（<NAME>-<序号>）
  -e, --extended         同时写出 service 原始响应（.json）
  -f, --from-file PATH   从清单文件读取目标（每行一个；指定后忽略命令行目标）
  -o, --output DIR       输出目录，或 s3://bucket/prefix
  -t, --threads N|auto   并发数（默认 auto：CPU 数的一半）
  -r, --recursive        递归展开目录
  -q, --quiet            只输出警告与错误
  -c, --config PATH      配置文件（默认 ./inkbatch.json，可选）
      --metrics-file P   运行结束后写出 Prometheus 文本格式指标
      --redis URL        使用 Redis 作为识别结果缓存
      --no-cache         不读写识别结果缓存
      --debug            输出调试日志（stderr）
  -h, --help             显示帮助
`)
}

// emitReport：stdout 非 TTY 时必须且仅输出一个 BatchReport JSON；摘要走 stderr。
func (a *app) emitReport(rep domain.BatchReport) {
	line := fmt.Sprintf("完成：succeeded=%d failed=%d", rep.Summary.Succeeded, rep.Summary.Failed)
	if isTTY(a.stdout) {
		fmt.Fprintln(a.stdout, line)
		return
	}
	enc := json.NewEncoder(a.stdout)
	_ = enc.Encode(rep)
	fmt.Fprintln(a.stderr, line)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
