package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pysugar/llm-auth-hub/internal/auth"
)

// fileConfig is the YAML shape of the optional model-policy override file.
// Any provider listed replaces that provider's built-in rules entirely.
type fileConfig struct {
	Providers map[string]providerConfig `yaml:"providers"`
}

type providerConfig struct {
	AllowSubstrings []string `yaml:"allow_substrings"`
	AllowPrefixes   []string `yaml:"allow_prefixes"`
	AllowModels     []string `yaml:"allow_models"`
}

var (
	stateMu     sync.RWMutex
	initialized bool
	rulesByProv map[auth.Provider]modelRules
)

// InitFromEnvAndConfig loads the built-in policy table and applies the
// override file when one exists.
func InitFromEnvAndConfig() error {
	rules := defaultRules()

	path, err := resolvePolicyPath()
	if err == nil && path != "" {
		err = applyPolicyFile(rules, path)
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	rulesByProv = rules
	initialized = true
	return err
}

func ensureInitialized() {
	stateMu.RLock()
	ok := initialized
	stateMu.RUnlock()
	if ok {
		return
	}
	_ = InitFromEnvAndConfig()
}

// ResetForTest resets in-memory state so tests can force reload.
func ResetForTest() {
	stateMu.Lock()
	defer stateMu.Unlock()
	initialized = false
	rulesByProv = nil
}

func providerRules(p auth.Provider) (modelRules, bool) {
	ensureInitialized()
	stateMu.RLock()
	defer stateMu.RUnlock()
	rules, ok := rulesByProv[p]
	return rules, ok
}

func resolvePolicyPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AUTHHUB_MODEL_POLICY_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/model_policy.yaml",
		"/etc/llm-auth-hub/model_policy.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, ".config", "llm-auth-hub", "model_policy.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func applyPolicyFile(rules map[auth.Provider]modelRules, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model policy file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse model policy file %q: %w", path, err)
	}

	for name, pc := range cfg.Providers {
		provider, err := auth.ParseProvider(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			continue
		}
		rules[provider] = modelRules{
			Substrings: lowerAll(pc.AllowSubstrings),
			Prefixes:   lowerAll(pc.AllowPrefixes),
			Exact:      exactSet(pc.AllowModels...),
		}
	}
	return nil
}

func lowerAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			result = append(result, v)
		}
	}
	return result
}
