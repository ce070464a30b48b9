package interact

import (
	"sort"
	"sync"
)

// 注册中心，按设备族名称获取交互插件
var (
	registryMu sync.RWMutex
	registry   = map[string]InteractPlugin{
		"default": &DefaultPlugin{},
	}
)

// Register 注册一个交互插件
func Register(name string, plugin InteractPlugin) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = plugin
}

// Get 获取指定设备族的交互插件，不存在则返回 default
func Get(name string) InteractPlugin {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[name]; ok {
		return p
	}
	return registry["default"]
}

// Names 返回已注册的插件名称（有序）
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
