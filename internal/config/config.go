// Package config 读取 wkcjs 引擎配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tangzhangming/wkcjs/internal/vm"
)

// 常量定义
const (
	ConfigFileName = "wkcjs.toml" // 配置文件名
)

// Config 引擎配置
type Config struct {
	Engine EngineConfig `toml:"engine" yaml:"engine"`
	JIT    JITConfig    `toml:"jit" yaml:"jit"`
	Debug  DebugConfig  `toml:"debug" yaml:"debug"`
	Log    LogConfig    `toml:"log" yaml:"log"`
}

// EngineConfig 解释器限制
type EngineConfig struct {
	// MaxArguments 一次调用的最大实参个数
	MaxArguments int `toml:"max_arguments" yaml:"max_arguments"`

	// StackSlots 值栈容量上限（槽位）
	StackSlots int `toml:"stack_slots" yaml:"stack_slots"`

	MaxFrames int `toml:"max_frames" yaml:"max_frames"`

	// NativeFrameCost 每层宿主重入估算的栈用量（字节）
	NativeFrameCost int `toml:"native_frame_cost" yaml:"native_frame_cost"`

	// StackMargin 平台栈上保留的余量（字节）
	StackMargin int `toml:"stack_margin" yaml:"stack_margin"`

	// StackLimit 平台栈上限（字节），0 表示读取系统设置
	StackLimit int `toml:"stack_limit" yaml:"stack_limit"`

	ErrorStackLimit int  `toml:"error_stack_limit" yaml:"error_stack_limit"`
	JSONP           bool `toml:"jsonp" yaml:"jsonp"`
}

// JITConfig 编译层
type JITConfig struct {
	Enabled         bool `toml:"enabled" yaml:"enabled"`
	TierUpThreshold int  `toml:"tier_up_threshold" yaml:"tier_up_threshold"`
	// Workers 后台编译协程数，0 表示同步编译
	Workers   int      `toml:"workers" yaml:"workers"`
	Blocklist []string `toml:"blocklist" yaml:"blocklist"`
}

// DebugConfig 调试
type DebugConfig struct {
	// Hooks 按调试模式编译所有代码
	Hooks bool `toml:"hooks" yaml:"hooks"`
}

// LogConfig 日志
type LogConfig struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// Default 默认配置
func Default() *Config {
	d := vm.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			MaxArguments:    d.MaxArguments,
			StackSlots:      d.StackSlots,
			MaxFrames:       d.MaxFrames,
			NativeFrameCost: d.NativeFrameCost,
			StackMargin:     d.StackMargin,
			ErrorStackLimit: d.ErrorStackLimit,
			JSONP:           d.JSONP,
		},
		JIT: JITConfig{
			Enabled:         true,
			TierUpThreshold: 100,
			Workers:         1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 从文件加载配置，文件里没有的字段取默认值
//
// .yaml/.yml 按 YAML 解析，其它按 TOML 解析。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查取值范围，一次报告全部问题
func (c *Config) Validate() error {
	var err error
	positive := func(name string, v int) {
		if v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("engine.max_arguments", c.Engine.MaxArguments)
	positive("engine.stack_slots", c.Engine.StackSlots)
	positive("engine.max_frames", c.Engine.MaxFrames)
	positive("engine.native_frame_cost", c.Engine.NativeFrameCost)
	positive("engine.stack_margin", c.Engine.StackMargin)
	positive("engine.error_stack_limit", c.Engine.ErrorStackLimit)
	if c.Engine.StackLimit < 0 {
		err = multierr.Append(err, fmt.Errorf("engine.stack_limit must not be negative, got %d", c.Engine.StackLimit))
	}
	if c.Engine.StackLimit > 0 && c.Engine.StackLimit <= c.Engine.StackMargin {
		err = multierr.Append(err, fmt.Errorf("engine.stack_limit %d leaves no room above stack_margin %d", c.Engine.StackLimit, c.Engine.StackMargin))
	}
	if c.JIT.Enabled {
		positive("jit.tier_up_threshold", c.JIT.TierUpThreshold)
	}
	if c.JIT.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("jit.workers must not be negative, got %d", c.JIT.Workers))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	return err
}

// VMConfig 转换为虚拟机配置
func (c *Config) VMConfig() vm.Config {
	return vm.Config{
		MaxArguments:    c.Engine.MaxArguments,
		StackSlots:      c.Engine.StackSlots,
		MaxFrames:       c.Engine.MaxFrames,
		NativeFrameCost: c.Engine.NativeFrameCost,
		StackMargin:     c.Engine.StackMargin,
		StackLimit:      c.Engine.StackLimit,
		ErrorStackLimit: c.Engine.ErrorStackLimit,
		JSONP:           c.Engine.JSONP,
		DebugHooks:      c.Debug.Hooks,
	}
}

// NewLogger 按 log 段创建日志器
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// FindConfigFile 从指定路径向上查找配置文件，找不到返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
