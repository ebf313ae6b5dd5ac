// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 远端实体API配置
	RemoteBaseURL string `json:"remote_base_url"`
	RemoteAPIKey  string `json:"remote_api_key,omitempty"`

	// 合并策略配置
	// 5分钟/1秒是沿用的策略默认值，可按部署环境调整
	FreshnessWindow   time.Duration `json:"freshness_window"`
	TieBreakThreshold time.Duration `json:"tie_break_threshold"`
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &AppConfig{
		Port:              getEnv("PORT", "8080"),
		DataDir:           getEnvPath("DATA_DIR", "data"),
		LogDir:            getEnvPath("LOG_DIR", "logs"),
		DebugMode:         getEnvBool("DEBUG_MODE", true),
		RemoteBaseURL:     getEnv("REMOTE_BASE_URL", ""),
		RemoteAPIKey:      getEnv("REMOTE_API_KEY", ""),
		FreshnessWindow:   time.Duration(getEnvInt("RECONCILE_FRESHNESS_MINUTES", 5)) * time.Minute,
		TieBreakThreshold: time.Duration(getEnvInt("RECONCILE_TIEBREAK_SECONDS", 1)) * time.Second,
	}

	if config.FreshnessWindow <= 0 || config.TieBreakThreshold <= 0 {
		return nil, fmt.Errorf("合并策略配置无效: 窗口与阈值必须为正")
	}

	configMutex.Lock()
	currentConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		cfg, _ := Load()
		return cfg
	}

	configCopy := *currentConfig
	return &configCopy
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("警告: 环境变量 %s 不是整数，使用默认值 %d\n", key, defaultValue)
		return defaultValue
	}
	return n
}
