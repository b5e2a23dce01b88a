package redis

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadConfig reads a declarative connection configuration from a file.
// The format is inferred from the file extension (yaml, json, toml).
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, newErr(KindConfig, err, "cannot read configuration file %q", path)
	}
	return configFromViper(v)
}

// ParseConfigMap builds a Config from an already-loaded raw map, the shape
// a configuration file would produce.
func ParseConfigMap(raw map[string]interface{}) (Config, error) {
	v := viper.New()
	if err := v.MergeConfigMap(raw); err != nil {
		return Config{}, newErr(KindConfig, err, "cannot read configuration map")
	}
	return configFromViper(v)
}

// configFromViper maps the raw shape onto Config. The connection entry is
// either a URI string or a parameter map; which one decides the config
// form. Validation beyond shape happens when the handle is resolved.
func configFromViper(v *viper.Viper) (Config, error) {
	var cfg Config

	switch conn := v.Get("connection").(type) {
	case nil:
		// normalize reports the missing connection at resolution time
	case string:
		cfg.URI = conn
	case map[string]interface{}, map[interface{}]interface{}:
		var p ConnectionParams
		if err := unmarshalKey(v, "connection", &p); err != nil {
			return Config{}, newErr(KindConfig, err, "invalid connection parameters")
		}
		cfg.Params = &p
	default:
		return Config{}, configErr("connection must be a URI string or a parameter map, got %T", conn)
	}

	cfg.IsClusterConnection = v.GetBool("isClusterConnection")
	cfg.ConnectionPooling = v.GetBool("connectionPooling")

	if v.IsSet("secureSocket") {
		ss, err := secureSocketFromViper(v)
		if err != nil {
			return Config{}, err
		}
		cfg.SecureSocket = ss
	}

	return cfg, nil
}

func secureSocketFromViper(v *viper.Viper) (*SecureSocket, error) {
	ss := &SecureSocket{
		Protocols:  v.GetStringSlice("secureSocket.protocols"),
		Ciphers:    v.GetStringSlice("secureSocket.ciphers"),
		VerifyMode: v.GetString("secureSocket.verifyMode"),
		StartTLS:   v.GetBool("secureSocket.startTls"),
	}

	switch cert := v.Get("secureSocket.cert").(type) {
	case nil:
	case string:
		ss.Cert = cert
	case map[string]interface{}, map[interface{}]interface{}:
		var ts TrustStore
		if err := unmarshalKey(v, "secureSocket.cert", &ts); err != nil {
			return nil, newErr(KindTLSConfig, err, "invalid trust store")
		}
		ss.TrustStore = &ts
	default:
		return nil, tlsConfigErr(nil, "cert must be a CA path or a trust store map, got %T", cert)
	}

	if v.IsSet("secureSocket.key") {
		var key struct {
			Path        string `mapstructure:"path"`
			Password    string `mapstructure:"password"`
			CertFile    string `mapstructure:"certFile"`
			KeyFile     string `mapstructure:"keyFile"`
			KeyPassword string `mapstructure:"keyPassword"`
		}
		if err := unmarshalKey(v, "secureSocket.key", &key); err != nil {
			return nil, newErr(KindTLSConfig, err, "invalid key material")
		}
		// Both markers map through so resolution rejects the ambiguity
		// instead of the loader silently picking one.
		if key.Path != "" {
			ss.KeyStore = &KeyStore{Path: key.Path, Password: key.Password}
		}
		if key.CertFile != "" {
			ss.CertKey = &CertKey{CertFile: key.CertFile, KeyFile: key.KeyFile, KeyPassword: key.KeyPassword}
		}
	}

	return ss, nil
}

func unmarshalKey(v *viper.Viper, key string, out interface{}) error {
	return v.UnmarshalKey(key, out, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		numberToSecondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
}

// numberToSecondsHook reads bare numbers aimed at duration fields as
// seconds, the unit the declarative shape uses. Strings like "30s" are
// handled by the regular duration hook.
func numberToSecondsHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch n := data.(type) {
	case int:
		return time.Duration(n) * time.Second, nil
	case int32:
		return time.Duration(n) * time.Second, nil
	case int64:
		return time.Duration(n) * time.Second, nil
	case uint:
		return time.Duration(n) * time.Second, nil
	case uint64:
		return time.Duration(n) * time.Second, nil
	case float32:
		return time.Duration(float64(n) * float64(time.Second)), nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	default:
		return data, nil
	}
}
