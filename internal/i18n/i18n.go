// Package i18n localizes bot-facing text. Translation catalogs are
// embedded TOML files, one per language; Russian is the default to match
// the user base.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed translation/*.toml
var translationFS embed.FS

const DefaultLanguage = "ru"

// Languages the bot offers in its language menu.
var Supported = []string{"ru", "en"}

var bundle *goi18n.Bundle

// Init parses the embedded translation catalogs. Must be called once at
// startup before T.
func Init() error {
	b := goi18n.NewBundle(language.Russian)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	err := fs.WalkDir(translationFS, "translation", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := translationFS.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = b.ParseMessageFileBytes(data, path)
		return err
	})
	if err != nil {
		return fmt.Errorf("i18n: parse translations: %w", err)
	}

	bundle = b
	return nil
}

// T localizes key for lang. Template params are passed as "Name==value"
// pairs. Unknown keys fall back to the key itself so a missing string
// never blanks a message.
func T(lang, key string, params ...string) string {
	if bundle == nil {
		return key
	}

	templateData := make(map[string]any, len(params))
	for _, param := range params {
		parts := strings.SplitN(param, "==", 2)
		if len(parts) == 2 {
			templateData[parts[0]] = parts[1]
		}
	}

	localizer := goi18n.NewLocalizer(bundle, lang, DefaultLanguage)
	msg, err := localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		return key
	}
	return msg
}
