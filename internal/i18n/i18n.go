package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"ptestbench/internal/logger"
)

//go:embed locales/*.json
var localeFiles embed.FS

// 消息键
const (
	MsgInvalidResponse  = "invalid_response"
	MsgNoResponse       = "no_response"
	MsgCrcMismatch      = "crc_mismatch"
	MsgModbusException  = "modbus_exception"
	MsgIoError          = "io_error"
	MsgTimeout          = "timeout"
	MsgPortNotOpen      = "port_not_open"
	MsgPortOpenFailed   = "port_open_failed"
	MsgPortsNotReady    = "ports_not_ready"
	MsgAckRetry         = "ack_retry"
	MsgAckMissing       = "ack_missing"
	MsgCalibrationPoint = "calibration_point"
	MsgMeasureStarted   = "measure_started"
	MsgMeasureStopped   = "measure_stopped"
)

// supported 与 locales 目录中的文件一一对应，第一个为回退语言
var supported = []language.Tag{
	language.English,
	language.Korean,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(supported)

// I18n 国际化管理器
type I18n struct {
	currentLang string
	messages    map[string]string
	fallback    map[string]string
}

// NewI18n 创建国际化管理器 (按系统语言)
func NewI18n() *I18n {
	i := &I18n{
		messages: make(map[string]string),
		fallback: make(map[string]string),
	}
	i.SetLanguage(detectSystemLanguage())
	return i
}

// SetLanguage 设置语言
func (i *I18n) SetLanguage(lang string) error {
	if err := i.loadLanguageFile("en", &i.fallback); err != nil {
		logger.Warn(fmt.Sprintf("cannot load fallback locale: %v", err))
	}

	lang = normalizeLanguageCode(lang)
	if err := i.loadLanguageFile(lang, &i.messages); err != nil {
		logger.Warn(fmt.Sprintf("cannot load locale %s: %v", lang, err))
		lang = "en"
		i.messages = make(map[string]string, len(i.fallback))
		for k, v := range i.fallback {
			i.messages[k] = v
		}
		i.currentLang = lang
		return err
	}

	i.currentLang = lang
	return nil
}

// T 翻译文本
func (i *I18n) T(key string, args ...interface{}) string {
	text, ok := i.messages[key]
	if !ok {
		text, ok = i.fallback[key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

// GetCurrentLanguage 获取当前语言
func (i *I18n) GetCurrentLanguage() string {
	return i.currentLang
}

// GetAvailableLanguages 获取可用语言列表
func (i *I18n) GetAvailableLanguages() []string {
	langs := make([]string, len(supported))
	for k, tag := range supported {
		langs[k] = tag.String()
	}
	return langs
}

func (i *I18n) loadLanguageFile(lang string, target *map[string]string) error {
	data, err := localeFiles.ReadFile(fmt.Sprintf("locales/%s.json", lang))
	if err != nil {
		return fmt.Errorf("read locale file: %w", err)
	}

	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("parse locale file: %w", err)
	}
	*target = messages
	return nil
}

// detectSystemLanguage 检测系统语言
func detectSystemLanguage() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if lang := os.Getenv(env); lang != "" {
			return lang
		}
	}
	return "en"
}

// normalizeLanguageCode 把 ko_KR.UTF-8 / zh-Hans / en-US 等映射到 locales 文件名
func normalizeLanguageCode(lang string) string {
	if idx := strings.Index(lang, "."); idx != -1 {
		lang = lang[:idx]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	_, index := language.MatchStrings(matcher, lang)
	return supported[index].String()
}

var (
	globalMu   sync.Mutex
	globalI18n *I18n
)

func global() *I18n {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalI18n == nil {
		globalI18n = NewI18n()
	}
	return globalI18n
}

// Init 初始化全局国际化实例
func Init(lang string) {
	i := &I18n{messages: map[string]string{}, fallback: map[string]string{}}
	if lang == "" {
		lang = detectSystemLanguage()
	}
	i.SetLanguage(lang)

	globalMu.Lock()
	globalI18n = i
	globalMu.Unlock()
}

// T 全局翻译函数
func T(key string, args ...interface{}) string {
	return global().T(key, args...)
}

// GetCurrentLanguage 获取当前语言
func GetCurrentLanguage() string {
	return global().GetCurrentLanguage()
}
