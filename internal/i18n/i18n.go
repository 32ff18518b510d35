// Package i18n holds the message catalogs for report and recommendation
// rendering. Russian is the default and the fallback for both unknown locales
// and keys missing from another catalog.
package i18n

import "fmt"

const (
	LocaleRussian = "ru"
	LocaleUzbek   = "uz"
	DefaultLocale = LocaleRussian
)

var messages = map[string]map[string]string{
	LocaleRussian: {
		// General terms
		"security_scan":   "Сканирование безопасности",
		"scan_results":    "Результаты сканирования",
		"recommendations": "Рекомендации",
		"certificate":     "Сертификат",
		"report":          "Отчет",
		"score":           "Оценка",
		"status":          "Статус",
		"issues_found":    "Найдено проблем",

		// Security levels
		"excellent": "Отлично",
		"good":      "Хорошо",
		"warning":   "Требует внимания",
		"critical":  "Критично",
		"error":     "Ошибка",

		// Probe categories
		"ssl_scan":     "SSL/HTTPS анализ",
		"port_scan":    "Сканирование портов",
		"headers_scan": "HTTP заголовки",
		"cms_scan":     "CMS и уязвимости",
		"ddos_scan":    "DDoS защита",

		// SSL recommendations
		"install_ssl_https":  "Установите SSL сертификат и включите HTTPS",
		"redirect_https":     "Настройте автоматическое перенаправление с HTTP на HTTPS",
		"ssl_update_config":  "Срочно обновите SSL конфигурацию",
		"renew_certificate":  "Продлите SSL сертификат до истечения срока действия",
		"disable_legacy_tls": "Отключите устаревшие протоколы TLS/SSL",

		// Port recommendations
		"replace_ftp":            "Замените FTP на SFTP или FTPS для безопасной передачи файлов",
		"replace_telnet":         "Замените Telnet на SSH для безопасного удаленного доступа",
		"restrict_rdp":           "Ограничьте доступ к RDP через VPN",
		"close_database_port":    "Закройте прямой доступ к базе данных (%s) из интернета",
		"close_port":             "Закройте неиспользуемый порт %d (%s)",
		"review_remaining_ports": "Проверьте и закройте остальные %d небезопасных портов",

		// Header recommendations
		"add_header":          "Добавьте заголовок %s",
		"hide_server_headers": "Скройте информационные заголовки сервера (Server, X-Powered-By)",

		// CMS recommendations
		"update_cms":           "Срочно обновите %s до последней версии",
		"patch_critical_vulns": "Найдены критические уязвимости - примените патчи немедленно",
		"restrict_cms_files":   "Ограничьте доступ к системным файлам CMS",
		"update_plugins":       "Обновите устаревшие плагины",

		// DDoS recommendations
		"setup_cdn_protection": "Настройте CDN (например, Cloudflare) для защиты от DDoS атак",
		"enable_rate_limiting": "Включите ограничение скорости запросов",
		"setup_load_balancing": "Настройте балансировку нагрузки между несколькими серверами",

		// General recommendations
		"full_audit":       "Рекомендуется комплексный аудит безопасности",
		"remediation_plan": "Создайте план поэтапного устранения уязвимостей",
		"monitor_security": "Настройте мониторинг безопасности",
		"regular_updates":  "Регулярно обновляйте программное обеспечение",
		"strong_auth":      "Используйте сильные пароли и двухфакторную аутентификацию",

		// Degraded probes
		"could_not_verify":       "Не удалось проверить %s, повторите сканирование",
		"default_recommendation": "Обратитесь к специалисту по информационной безопасности",
		"more_issues":            "... и еще %d проблем",

		// Certificate labels
		"certificate_title":    "Сертификат безопасности",
		"certificate_subtitle": "Подтверждает соответствие стандартам кибербезопасности",
		"issued_to":            "Выдан для",
		"scan_date":            "Дата сканирования",
		"security_score":       "Оценка безопасности",
		"valid_until":          "Действителен до",
		"qr_verification":      "QR-код для верификации",

		// Report labels
		"security_report":   "Отчет по безопасности",
		"executive_summary": "Краткая сводка",
		"detailed_findings": "Детальные результаты",
		"risk_assessment":   "Оценка рисков",
		"action_plan":       "План действий",
		"next_scan":         "Следующее сканирование",
	},
	LocaleUzbek: {
		// General terms
		"security_scan":   "Xavfsizlik skanerlashi",
		"scan_results":    "Skanerlash natijalari",
		"recommendations": "Tavsiyalar",
		"certificate":     "Sertifikat",
		"report":          "Hisobot",
		"score":           "Bahosi",
		"status":          "Holati",
		"issues_found":    "Topilgan muammolar",

		// Security levels
		"excellent": "Ajoyib",
		"good":      "Yaxshi",
		"warning":   "Ehtiyot",
		"critical":  "Kritik",
		"error":     "Xato",

		// Probe categories
		"ssl_scan":     "SSL/HTTPS tahlili",
		"port_scan":    "Portlarni skanerlash",
		"headers_scan": "HTTP sarlavhalar",
		"cms_scan":     "CMS va zaifliklar",
		"ddos_scan":    "DDoS himoyasi",

		// SSL recommendations
		"install_ssl_https":  "SSL sertifikatini o'rnating va HTTPS ni yoqing",
		"redirect_https":     "HTTP dan HTTPS ga avtomatik yo'naltirishni sozlang",
		"ssl_update_config":  "SSL konfiguratsiyasini zudlik bilan yangilang",
		"renew_certificate":  "SSL sertifikatini muddati tugashidan oldin uzaytiring",
		"disable_legacy_tls": "Eskirgan TLS/SSL protokollarini o'chiring",

		// Port recommendations
		"replace_ftp":            "Fayllarni xavfsiz uzatish uchun FTP ni SFTP yoki FTPS ga almashtiring",
		"replace_telnet":         "Xavfsiz masofaviy kirish uchun Telnet ni SSH ga almashtiring",
		"restrict_rdp":           "RDP ga kirishni VPN orqali cheklang",
		"close_database_port":    "Ma'lumotlar bazasiga (%s) internetdan to'g'ridan-to'g'ri kirishni yoping",
		"close_port":             "Foydalanilmayotgan %d portni yoping (%s)",
		"review_remaining_ports": "Qolgan %d ta xavfli portni tekshirib yoping",

		// Header recommendations
		"add_header":          "%s sarlavhasini qo'shing",
		"hide_server_headers": "Server haqidagi ma'lumot sarlavhalarini yashiring (Server, X-Powered-By)",

		// CMS recommendations
		"update_cms":           "%s ni zudlik bilan oxirgi versiyaga yangilang",
		"patch_critical_vulns": "Kritik zaifliklar topildi - darhol yamoqlarni qo'llang",
		"restrict_cms_files":   "CMS tizim fayllariga kirishni cheklang",
		"update_plugins":       "Eskirgan plaginlarni yangilang",

		// DDoS recommendations
		"setup_cdn_protection": "DDoS hujumlaridan himoya uchun CDN (masalan, Cloudflare) sozlang",
		"enable_rate_limiting": "So'rovlar tezligini cheklashni yoqing",
		"setup_load_balancing": "Bir nechta serverlar o'rtasida yuk balansini sozlang",

		// General recommendations
		"full_audit":       "Kompleks xavfsizlik auditi tavsiya etiladi",
		"remediation_plan": "Zaifliklarni bosqichma-bosqich bartaraf etish rejasini tuzing",
		"monitor_security": "Xavfsizlik monitoringini sozlang",
		"regular_updates":  "Dasturiy ta'minotni muntazam yangilab boring",
		"strong_auth":      "Kuchli parollar va ikki faktorli autentifikatsiyadan foydalaning",

		// Degraded probes
		"could_not_verify":       "%s tekshirib bo'lmadi, skanerlashni qayta urinib ko'ring",
		"default_recommendation": "Axborot xavfsizligi mutaxassisiga murojaat qiling",
		"more_issues":            "... yana %d ta muammo",

		// Certificate labels
		"certificate_title":    "Xavfsizlik sertifikati",
		"certificate_subtitle": "Kiberbezlik standartlariga muvofiqligini tasdiqlaydi",
		"issued_to":            "Kimga berilgan",
		"scan_date":            "Skanerlash sanasi",
		"security_score":       "Xavfsizlik bahosi",
		"valid_until":          "Amal qilish muddati",
		"qr_verification":      "Tekshirish uchun QR-kod",

		// Report labels
		"security_report":   "Xavfsizlik hisoboti",
		"executive_summary": "Qisqacha xulosalar",
		"detailed_findings": "Batafsil natijalar",
		"risk_assessment":   "Xavf baholash",
		"action_plan":       "Harakat rejasi",
		"next_scan":         "Keyingi skanerlash",
	},
}

// probeLabels maps probe type tags to their display name keys.
var probeLabels = map[string]string{
	"ssl":     "ssl_scan",
	"ports":   "port_scan",
	"headers": "headers_scan",
	"cms":     "cms_scan",
	"ddos":    "ddos_scan",
}

// Normalize maps a raw language tag onto a supported locale.
func Normalize(locale string) string {
	if _, ok := messages[locale]; ok {
		return locale
	}
	return DefaultLocale
}

// T renders the message for key in the given locale. Unknown locales fall
// back to Russian, unknown keys fall back to the Russian catalog and finally
// to the key itself. Arguments are applied with fmt.Sprintf semantics.
func T(locale, key string, args ...any) string {
	catalog := messages[Normalize(locale)]
	msg, ok := catalog[key]
	if !ok {
		msg, ok = messages[DefaultLocale][key]
		if !ok {
			msg = key
		}
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// ProbeLabel renders the display name of a probe type tag.
func ProbeLabel(locale, tag string) string {
	key, ok := probeLabels[tag]
	if !ok {
		return tag
	}
	return T(locale, key)
}
