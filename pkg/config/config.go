package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load 读取 config/{service}.yaml（可选）+ 环境变量覆盖，结果填到 out。
// 约定：
//
//	REALTIME_GATEWAY_HTTP_ADDR 覆盖 http.addr
//	REALTIME_GATEWAY_JWT_SECRET 覆盖 jwt.secret
//
// defaults 里的 key 一定要写全，AutomaticEnv 只认识 viper 已知的 key。
func Load(service string, out interface{}, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix(service))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("[%s] no config file, using defaults + env", service)
	} else {
		log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return v, nil
}

// Watch 监听文件变更。只把新值交给 onChange，由调用方决定哪些字段允许热更新，
// 不直接改正在被其它 goroutine 读的结构体。
func Watch(v *viper.Viper, service string, onChange func(v *viper.Viper)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[%s] config file changed: %s", service, e.Name)
		onChange(v)
	})
	v.WatchConfig()
}

// EnvPrefix realtime-gateway -> REALTIME_GATEWAY
func EnvPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}
