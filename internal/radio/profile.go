package radio

import (
	"fmt"
	"os"
	"sort"

	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
	"gopkg.in/yaml.v3"
)

// Profiles 命名射频参数集，来自 YAML 文件：
//
//	profiles:
//	  eu868-long-range:
//	    frequency: 868100000
//	    spreading_factor: 12
//	    bandwidth: 125kHz
//
// 未写出的字段取 DefaultConfiguration 的值。
type Profiles struct {
	byName map[string]rui3.Configuration
}

type profilesFile struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// LoadProfiles 从文件加载；path 为空返回空集合
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{byName: map[string]rui3.Configuration{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read radio profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles 解析并逐个校验
func ParseProfiles(data []byte) (*Profiles, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse radio profiles: %w", err)
	}
	p := &Profiles{byName: make(map[string]rui3.Configuration, len(f.Profiles))}
	for name, node := range f.Profiles {
		cfg := rui3.DefaultConfiguration()
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		p.byName[name] = cfg
	}
	return p, nil
}

// Get 按名称取参数集
func (p *Profiles) Get(name string) (rui3.Configuration, bool) {
	cfg, ok := p.byName[name]
	return cfg, ok
}

// Names 排序后的名称列表
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.byName))
	for n := range p.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
