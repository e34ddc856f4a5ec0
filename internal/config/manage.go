package config

import "fmt"

// KeyInfo is one settable key with its current value.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists the non-secret keys with their values in cfg.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprintf("%v", s.extract(cfg))})
	}
	return result
}

// ValidKeys returns the keys `config set` accepts.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// SetKey validates value and writes it to the config file.
func SetKey(key, value string) error {
	f, err := readJSONFile(configFilePath())
	if err != nil {
		return fmt.Errorf("config file not rewritten: %w", err)
	}
	return setKey(f, key, value)
}

func setKey(f *jsonFile, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		return f.set(key, v)
	}
	return f.set(key, value)
}

// SaveSecret stores a secret key in the secrets file (mode 0600).
func SaveSecret(key, value string) error {
	s, ok := lookupSpec(key)
	if !ok || !s.secret {
		return fmt.Errorf("%q is not a secret key", key)
	}
	f, err := readJSONFile(secretsFilePath())
	if err != nil {
		return fmt.Errorf("secrets file not rewritten: %w", err)
	}
	return f.set(key, value)
}
