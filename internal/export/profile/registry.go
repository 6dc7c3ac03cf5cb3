package profile

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"letterpulse/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SubscriberMapping 描述订阅者表的成员定位与列名映射。
type SubscriberMapping struct {
	Members   []string `mapstructure:"members" yaml:"members"`
	CreatedAt string   `mapstructure:"created_at" yaml:"created_at"`
	PaidFlag  string   `mapstructure:"paid_flag" yaml:"paid_flag"`
	Email     string   `mapstructure:"email" yaml:"email"`
}

// PostMapping 描述文章表的成员定位与列名映射。
type PostMapping struct {
	Members       []string `mapstructure:"members" yaml:"members"`
	Date          string   `mapstructure:"date" yaml:"date"`
	Title         string   `mapstructure:"title" yaml:"title"`
	PublishedFlag string   `mapstructure:"published_flag" yaml:"published_flag"`
	Type          string   `mapstructure:"type" yaml:"type"`
	Audience      string   `mapstructure:"audience" yaml:"audience"`
}

// Profile 是一套列映射：不同导出格式（subscribers.csv / email_list.csv 等）
// 通过 profile 吸收差异，而非写死在解析器里。
type Profile struct {
	Name        string            `mapstructure:"-" yaml:"-"`
	Description string            `mapstructure:"description" yaml:"description"`
	Default     bool              `mapstructure:"default" yaml:"default"`
	Subscribers SubscriberMapping `mapstructure:"subscribers" yaml:"subscribers"`
	Posts       PostMapping       `mapstructure:"posts" yaml:"posts"`
}

// FileConfig 映射 profiles 文件的根结构。
type FileConfig struct {
	Profiles map[string]Profile `mapstructure:"profiles" yaml:"profiles"`
}

// Snapshot 公开的 profile 快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理列映射 profile，支持文件热更新；重载失败时保留旧快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

const profilesSchemaDoc = `{
  "type": "object",
  "required": ["profiles"],
  "properties": {
    "profiles": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["subscribers", "posts"],
        "properties": {
          "description": {"type": "string"},
          "default": {"type": "boolean"},
          "subscribers": {
            "type": "object",
            "required": ["members", "created_at"],
            "properties": {
              "members": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
              "created_at": {"type": "string", "minLength": 1},
              "paid_flag": {"type": "string"},
              "email": {"type": "string"}
            }
          },
          "posts": {
            "type": "object",
            "required": ["members", "date", "title"],
            "properties": {
              "members": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
              "date": {"type": "string", "minLength": 1},
              "title": {"type": "string", "minLength": 1},
              "published_flag": {"type": "string"},
              "type": {"type": "string"},
              "audience": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	profilesSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		profilesSchema, schemaErr = jsonschema.CompileString("export_profiles.schema.json", profilesSchemaDoc)
	})
	return profilesSchema, schemaErr
}

// NewRegistry 读取 profiles 文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read export profiles failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("export profile reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前 profile 集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Profile 返回指定名称的 profile；名称为空时返回默认 profile。
func (r *Registry) Profile(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.TrimSpace(name)
	if name != "" {
		p, ok := r.snapshot.Profiles[name]
		return p, ok
	}
	names := make([]string, 0, len(r.snapshot.Profiles))
	for n := range r.snapshot.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if r.snapshot.Profiles[n].Default {
			return r.snapshot.Profiles[n], true
		}
	}
	if len(names) > 0 {
		return r.snapshot.Profiles[names[0]], true
	}
	return Profile{}, false
}

// OnChange 注册重载监听器。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read export profiles failed: %w", err)
	}
	profiles, err := ParseProfiles(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("导出 profile 已加载：%d 个（%s）", len(profiles), r.path)
	return nil
}

// ParseProfiles 解析并校验 profiles 文档（YAML，jsonschema 约束）。
func ParseProfiles(raw []byte) (map[string]Profile, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("export profiles 不是有效的 YAML: %w", err)
	}
	doc = normalizeYAML(doc)
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("export profiles schema 校验失败: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing export profiles failed: %w", err)
	}
	out := make(map[string]Profile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p.Name = name
		out[name] = p
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("export profiles 为空")
	}
	return out, nil
}

// normalizeYAML 将 map[any]any 规整为 map[string]any，便于 jsonschema 校验。
func normalizeYAML(node any) any {
	switch val := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeYAML(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	case int:
		return float64(val)
	default:
		return node
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	clone := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt}
	if len(s.Profiles) > 0 {
		clone.Profiles = make(map[string]Profile, len(s.Profiles))
		for k, v := range s.Profiles {
			clone.Profiles[k] = v
		}
	}
	return clone
}
