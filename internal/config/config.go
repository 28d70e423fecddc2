// Package config loads teecast settings and stream configurations.
//
// Settings are layered: a field keeps the value of an explicitly set CLI
// flag, otherwise a TEECAST_ env var wins over teecast.toml, which wins
// over the flag default.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "TEECAST_"

// setting is one option field together with the keys it is read from.
type setting struct {
	value   reflect.Value
	flag    string
	tomlKey string
	envKey  string
}

// LoadConfig fills opts, a pointer to a flat options struct, from the
// settings file named by its Config field and from the environment. Flags
// changed on cmd, local or persistent, are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	fields := settingsOf(v)

	fromCLI := map[string]bool{}
	if cmd != nil {
		mark := func(f *pflag.Flag) {
			if f.Changed {
				fromCLI[f.Name] = true
			}
		}
		cmd.Flags().VisitAll(mark)
		cmd.PersistentFlags().VisitAll(mark)
	}

	var tree map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		var err error
		if tree, err = readSettingsFile(f.String()); err != nil {
			return err
		}
	}

	for _, s := range fields {
		if fromCLI[s.flag] {
			continue
		}
		if raw := lookupKey(tree, s.tomlKey); raw != nil {
			assign(s.value, raw)
		}
		if s.envKey == "" {
			continue
		}
		if env := os.Getenv(EnvPrefix + s.envKey); env != "" {
			assign(s.value, env)
		}
	}
	return nil
}

func settingsOf(v reflect.Value) []setting {
	t := v.Type()
	out := make([]setting, 0, t.NumField())
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		out = append(out, setting{
			value:   v.Field(i),
			flag:    fieldNameToFlag(sf.Name),
			tomlKey: sf.Tag.Get("toml"),
			envKey:  sf.Tag.Get("env"),
		})
	}
	return out
}

// readSettingsFile decodes the TOML file at path. A missing file yields
// no settings.
func readSettingsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return tree, nil
}

// lookupKey walks a dotted key such as "logging.level" through the tables
// of tree.
func lookupKey(tree map[string]any, key string) any {
	if tree == nil || key == "" {
		return nil
	}
	table := tree
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[parts[len(parts)-1]]
}

// assign stores raw in field. raw is either a decoded TOML value or an env
// string; values that do not fit the field's kind are ignored.
func assign(field reflect.Value, raw any) {
	if !field.CanSet() {
		return
	}
	text, isText := raw.(string)

	switch field.Kind() {
	case reflect.String:
		if isText {
			field.SetString(text)
		}
	case reflect.Bool:
		switch b := raw.(type) {
		case bool:
			field.SetBool(b)
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				field.SetBool(parsed)
			}
		}
	case reflect.Int, reflect.Int64:
		switch n := raw.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		case string:
			if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				field.SetInt(parsed)
			}
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		var items []string
		switch list := raw.(type) {
		case []any:
			for _, item := range list {
				s, _ := item.(string)
				items = append(items, s)
			}
		case string:
			for _, part := range strings.Split(list, ",") {
				items = append(items, strings.TrimSpace(part))
			}
		default:
			return
		}
		field.Set(reflect.ValueOf(items))
	}
}

// fieldNameToFlag converts a struct field name to the kebab-case flag
// humacli derives from it: "LoggingLevel" -> "logging-level",
// "APIAddr" -> "api-addr".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
