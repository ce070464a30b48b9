package collect

import (
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]CollectPlugin{
		"default": &DefaultPlugin{},
	}
)

// Register 注册采集插件，name 为设备族名称（EH/BU/TU/TG）
func Register(name string, plugin CollectPlugin) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = plugin
}

// Get 获取指定设备族的采集插件，不存在则返回 default
func Get(name string) CollectPlugin {
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
