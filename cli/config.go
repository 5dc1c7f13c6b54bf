package main

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	raucwebsvc "github.com/jonathanyhliang/raucweb-svc"
)

// Theming keys. Besides RAUCCTL_WEB_UI_*, the unprefixed WEB_UI_* variables
// read by the update service itself are honoured so both can share one
// environment file.
var appConfigKeys = []struct {
	key, env, def string
}{
	{"web-ui-title", "WEB_UI_TITLE", "Firmware Updater"},
	{"web-ui-logo-url", "WEB_UI_LOGO_URL", ""},
	{"web-ui-primary-color", "WEB_UI_PRIMARY_COLOR", "rgb(59, 130, 246)"},
	{"web-ui-background-color", "WEB_UI_BACKGROUND_COLOR", "rgb(249, 250, 251)"},
	{"web-ui-foreground-color", "WEB_UI_FOREGROUND_COLOR", "rgb(17, 24, 39)"},
}

func bindAppConfig(v *viper.Viper) {
	for _, k := range appConfigKeys {
		v.SetDefault(k.key, k.def)
		_ = v.BindEnv(k.key, "RAUCCTL_"+k.env, k.env)
	}
}

func loadAppConfig(v *viper.Viper) raucwebsvc.AppConfig {
	return raucwebsvc.AppConfig{
		LogoURL:         v.GetString("web-ui-logo-url"),
		ProjectName:     v.GetString("web-ui-title"),
		BackgroundColor: v.GetString("web-ui-background-color"),
		ForegroundColor: v.GetString("web-ui-foreground-color"),
		PrimaryColor:    v.GetString("web-ui-primary-color"),
	}
}

func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}
