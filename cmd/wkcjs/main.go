package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/wkcjs/internal/bytecode"
	"github.com/tangzhangming/wkcjs/internal/config"
	rterrors "github.com/tangzhangming/wkcjs/internal/errors"
	"github.com/tangzhangming/wkcjs/internal/runtime"
	"github.com/tangzhangming/wkcjs/internal/vm"
)

var (
	configPath   = flag.String("config", "", "Config file (default: nearest wkcjs.toml)")
	showBytecode = flag.Bool("bytecode", false, "Show bytecode, don't run")
	asModule     = flag.Bool("module", false, "Run as a module (top-level await)")
	jsonOutput   = flag.Bool("json", false, "Print result and uncaught error as JSON")
	trace        = flag.Bool("trace", false, "Enable debug logging")
	noJIT        = flag.Bool("no-jit", false, "Disable the compile tier")
	noJSONP      = flag.Bool("no-jsonp", false, "Disable the JSONP fast path")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("wkcjs JavaScript interpreter")
		fmt.Println()
		fmt.Println("Usage: wkcjs [options] <file.js>")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	os.Exit(run(flag.Arg(0)))
}

func run(filename string) int {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	r, err := runtime.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer r.Close()

	// 显示字节码
	if *showBytecode {
		text, err := r.Disassemble(string(source), filename, *asModule)
		if err != nil {
			return report(filename, string(source), err)
		}
		fmt.Println(text)
		return 0
	}

	// 运行
	var result bytecode.Value
	if *asModule {
		result, err = r.RunModule(string(source), filename)
	} else {
		result, err = r.Run(string(source), filename)
	}
	if err != nil {
		return report(filename, string(source), err)
	}
	if *jsonOutput {
		if err := writeResult(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// writeResult 以 JSON 输出完成值
func writeResult(w io.Writer, result bytecode.Value) error {
	out, err := json.Marshal(map[string]string{
		"result": vm.ToString(result),
		"type":   vm.TypeOf(result),
	})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// loadConfig 读取配置文件后应用命令行开关
func loadConfig(filename string) (*config.Config, error) {
	path := *configPath
	if path == "" {
		if dir, err := filepath.Abs(filepath.Dir(filename)); err == nil {
			path = config.FindConfigFile(dir)
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *trace {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if *noJIT {
		cfg.JIT.Enabled = false
	}
	if *noJSONP {
		cfg.Engine.JSONP = false
	}
	return cfg, nil
}

// report 输出错误并返回退出码
func report(filename, source string, err error) int {
	if *jsonOutput {
		payload := err
		if je, ok := runtime.AsJSError(err); ok {
			payload = je.RuntimeError
		}
		fmt.Fprintln(os.Stderr, string(rterrors.ToJSON(payload)))
		return 1
	}

	reporter := rterrors.NewReporter(os.Stderr)
	reporter.SetSource(filename, source)
	if je, ok := runtime.AsJSError(err); ok {
		reporter.ReportRuntimeError(je.RuntimeError)
		return 1
	}
	reporter.Report(err)
	return 1
}
