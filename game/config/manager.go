package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = service.ErrInvalidConfig
)

// DefaultName is the rule set used when a session does not name one
const DefaultName = "classic"

// ruleExtensions lists the accepted rule file extensions in lookup order
var ruleExtensions = []string{".yaml", ".yml", ".json"}

// Manager handles rule set loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.Rules
	configs       map[string]*engine.Rules
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string, logger *zap.Logger) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.Rules),
		logger:    logger,
	}

	m.loadDefaultConfig()
	return m, nil
}

// Dir returns the directory rule sets are read from
func (m *Manager) Dir() string {
	return m.configDir
}

func configName(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

func isRulesFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range ruleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// findFile locates the file holding the named rule set
func (m *Manager) findFile(name string) (string, error) {
	for _, ext := range ruleExtensions {
		path := filepath.Join(m.configDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrConfigNotFound
}

// LoadConfig loads a rule set by name
func (m *Manager) LoadConfig(name string) (*engine.Rules, error) {
	name = configName(name)

	m.mu.RLock()
	// Check cache first
	if rules, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return rules.Clone(), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if rules, exists := m.configs[name]; exists {
		return rules.Clone(), nil
	}

	rules, err := m.readConfig(name)
	if err != nil {
		return nil, err
	}

	m.configs[name] = rules
	return rules.Clone(), nil
}

func (m *Manager) readConfig(name string) (*engine.Rules, error) {
	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	rules, err := engine.ParseRules(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := engine.ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return rules, nil
}

// ListConfigs returns information about all available rule sets
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !isRulesFile(entry.Name()) {
			continue
		}

		id := configName(entry.Name())
		if seen[id] {
			continue
		}

		rules, err := m.LoadConfig(id)
		if err != nil {
			m.logger.Warn("skipping invalid rules file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		seen[id] = true

		configs = append(configs, &service.ConfigInfo{
			Filename:      entry.Name(),
			ConfigID:      id,
			Name:          rules.Name,
			Description:   rules.Description,
			Rows:          rules.Rows,
			Cols:          rules.Cols,
			MovesPerBoard: rules.MovesPerBoard,
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns the default rule set
func (m *Manager) GetDefault() *engine.Rules {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig.Clone()
}

// SetDefault sets the default rule set by name
func (m *Manager) SetDefault(name string) error {
	rules, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = rules
	return nil
}

// Invalidate drops one cached rule set so the next load reads it from disk
func (m *Manager) Invalidate(name string) {
	name = configName(name)
	m.mu.Lock()
	delete(m.configs, name)
	m.mu.Unlock()

	if name == m.GetDefault().Name || name == DefaultName {
		m.loadDefaultConfig()
	}
}

// RefreshCache drops every cached rule set and reloads the default
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.configs = make(map[string]*engine.Rules)
	m.mu.Unlock()

	m.loadDefaultConfig()
}

// loadDefaultConfig loads the default rule set, falling back to the first
// valid file and then to the built-in rules
func (m *Manager) loadDefaultConfig() {
	rules, err := m.LoadConfig(DefaultName)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr != nil || len(configs) == 0 {
			m.logger.Warn("no rules files found, using built-in rules", zap.String("dir", m.configDir))
			rules = m.createMinimalConfig()
		} else if rules, err = m.LoadConfig(configs[0].ConfigID); err != nil {
			rules = m.createMinimalConfig()
		}
	}

	m.mu.Lock()
	m.defaultConfig = rules
	m.mu.Unlock()
}

// SaveConfig validates a rule set and writes it to disk as YAML
func (m *Manager) SaveConfig(name string, rules *engine.Rules) error {
	if err := engine.ValidateRules(rules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	name = configName(name)
	if name == "" || name == "." {
		return fmt.Errorf("%w: empty config name", ErrInvalidConfig)
	}

	data, err := yaml.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(m.configDir, name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = rules.Clone()
	m.mu.Unlock()

	return nil
}

// createMinimalConfig returns the built-in rules
func (m *Manager) createMinimalConfig() *engine.Rules {
	rules := engine.DefaultRules()
	rules.Name = "default"
	rules.Description = "Built-in rules"
	return rules
}
