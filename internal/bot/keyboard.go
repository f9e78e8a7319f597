package bot

import (
	tele "gopkg.in/telebot.v3"

	"vpnbot/internal/i18n"
	"vpnbot/internal/links"
)

// Keyboards are built from raw InlineButton rows so callback data is
// matched in one dispatch switch instead of per-button handlers.

func markup(rows ...[]tele.InlineButton) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func dataButton(text, data string) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: data}
}

func urlButton(text, url string) tele.InlineButton {
	return tele.InlineButton{Text: text, URL: url}
}

func mainMenuKeyboard(lang string) *tele.ReplyMarkup {
	return markup(
		[]tele.InlineButton{
			dataButton("🔐 "+i18n.T(lang, "menu.connect"), "choose_device"),
			dataButton("👤 "+i18n.T(lang, "menu.profile"), "profile"),
		},
		[]tele.InlineButton{
			dataButton("🛡 "+i18n.T(lang, "menu.check_protection"), "check_ip"),
			dataButton("🚀 "+i18n.T(lang, "menu.speed_test"), "speed_test"),
		},
		[]tele.InlineButton{
			dataButton("🌐 "+i18n.T(lang, "menu.language"), "select_language"),
		},
	)
}

func deviceMenuKeyboard(lang string) *tele.ReplyMarkup {
	return markup(
		[]tele.InlineButton{
			dataButton("🍏 "+i18n.T(lang, "device.apple"), "device_"+links.DeviceApple),
		},
		[]tele.InlineButton{
			dataButton("🤖 "+i18n.T(lang, "device.android"), "device_"+links.DeviceAndroid),
		},
		[]tele.InlineButton{
			dataButton("🖥 "+i18n.T(lang, "device.windows"), "device_"+links.DeviceWindows),
		},
		[]tele.InlineButton{
			dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
		},
	)
}

func deviceKeyboard(lang, device string, set links.Links) *tele.ReplyMarkup {
	rows := [][]tele.InlineButton{}

	if appURL, ok := links.AppDownloadLinks()[device]; ok {
		rows = append(rows, []tele.InlineButton{
			urlButton("📥 "+i18n.T(lang, "device.download_app"), appURL),
		})
	}
	rows = append(rows,
		[]tele.InlineButton{
			urlButton("⚡️ "+i18n.T(lang, "device.auto_connect"), set.RedirectURL),
		},
		[]tele.InlineButton{
			dataButton("📱 "+i18n.T(lang, "device.qr_connect"), "show_qr"),
			dataButton("🔗 "+i18n.T(lang, "device.copy_vless_link"), "show_vless_link"),
		},
		[]tele.InlineButton{
			dataButton(i18n.T(lang, "device.back_to_devices"), "back_to_devices"),
			dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
		},
	)
	return markup(rows...)
}

func languageKeyboard(lang string) *tele.ReplyMarkup {
	return markup(
		[]tele.InlineButton{
			dataButton("🇷🇺 Русский", "set_language_ru"),
			dataButton("🇬🇧 English", "set_language_en"),
		},
		[]tele.InlineButton{
			dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
		},
	)
}

func backKeyboard(lang string) *tele.ReplyMarkup {
	return markup(
		[]tele.InlineButton{
			dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
		},
	)
}

func ipCheckPromptKeyboard(lang, checkURL string) *tele.ReplyMarkup {
	return markup(
		[]tele.InlineButton{
			urlButton("🔍 "+i18n.T(lang, "ip_check.check_button"), checkURL),
		},
		[]tele.InlineButton{
			dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
		},
	)
}

func ipCheckResultKeyboard(lang string, protected bool) *tele.ReplyMarkup {
	rows := [][]tele.InlineButton{}
	if !protected {
		rows = append(rows, []tele.InlineButton{
			dataButton("🔐 "+i18n.T(lang, "ip_check.connect_now"), "choose_device"),
		})
	}
	rows = append(rows, []tele.InlineButton{
		dataButton("⬅️ "+i18n.T(lang, "menu.back"), "back_to_menu"),
	})
	return markup(rows...)
}
