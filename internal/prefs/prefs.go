// Package prefs persists user preferences and exposes each one as an observable value.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/observe"
	"github.com/hpungsan/tabula/internal/photo"
)

// Preference keys as stored in the preferences table.
const (
	KeyTheme               = "theme_mode"
	KeyLanguage            = "language"
	KeySessionSize         = "session_size"
	KeyCurationMode        = "curation_mode"
	KeyOnboardingCompleted = "onboarding_completed"
)

// Keys lists every preference key in display order.
var Keys = []string{KeyTheme, KeyLanguage, KeySessionSize, KeyCurationMode, KeyOnboardingCompleted}

// Session size bounds.
const (
	DefaultSessionSize = 15
	MinSessionSize     = 5
	MaxSessionSize     = 50
)

// ThemeMode is the UI color scheme.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "LIGHT"
	ThemeDark   ThemeMode = "DARK"
	ThemeSystem ThemeMode = "SYSTEM"
)

// Language is the UI language.
type Language string

const (
	LanguageEN Language = "EN"
	LanguageCN Language = "CN"
)

// Defaults.
const (
	DefaultTheme    = ThemeDark
	DefaultLanguage = LanguageCN
)

// ClampSessionSize bounds n to [MinSessionSize, MaxSessionSize].
func ClampSessionSize(n int) int {
	return min(max(n, MinSessionSize), MaxSessionSize)
}

// ParseTheme parses a theme name (case-insensitive).
func ParseTheme(s string) (ThemeMode, error) {
	switch ThemeMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	case ThemeSystem:
		return ThemeSystem, nil
	default:
		return "", fmt.Errorf("unknown theme %q (want LIGHT, DARK or SYSTEM)", s)
	}
}

// ParseLanguage parses a language code (case-insensitive).
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToUpper(strings.TrimSpace(s))) {
	case LanguageEN:
		return LanguageEN, nil
	case LanguageCN:
		return LanguageCN, nil
	default:
		return "", fmt.Errorf("unknown language %q (want EN or CN)", s)
	}
}

// Values is a point-in-time copy of every preference.
type Values struct {
	Theme               ThemeMode          `json:"theme_mode"`
	Language            Language           `json:"language"`
	SessionSize         int                `json:"session_size"`
	CurationMode        photo.CurationMode `json:"curation_mode"`
	OnboardingCompleted bool               `json:"onboarding_completed"`
}

// Store holds the preferences. Setters persist first, then publish.
type Store struct {
	db *sql.DB

	Theme               *observe.Value[ThemeMode]
	Language            *observe.Value[Language]
	SessionSize         *observe.Value[int]
	CurationMode        *observe.Value[photo.CurationMode]
	OnboardingCompleted *observe.Value[bool]
}

// Open loads the persisted preferences. Missing or unparseable values fall back to defaults.
func Open(ctx context.Context, database *sql.DB) (*Store, error) {
	stored, err := db.AllPreferences(ctx, database)
	if err != nil {
		return nil, err
	}

	theme, err := ParseTheme(stored[KeyTheme])
	if err != nil {
		theme = DefaultTheme
		warnFallback(stored, KeyTheme)
	}
	lang, err := ParseLanguage(stored[KeyLanguage])
	if err != nil {
		lang = DefaultLanguage
		warnFallback(stored, KeyLanguage)
	}
	size := DefaultSessionSize
	if v, ok := stored[KeySessionSize]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			size = ClampSessionSize(n)
		} else {
			warnFallback(stored, KeySessionSize)
		}
	}
	mode, err := photo.ParseCurationMode(stored[KeyCurationMode])
	if err != nil {
		mode = photo.CurationRandom
		warnFallback(stored, KeyCurationMode)
	}
	onboarded, _ := strconv.ParseBool(stored[KeyOnboardingCompleted])

	return &Store{
		db:                  database,
		Theme:               observe.NewComparable(theme),
		Language:            observe.NewComparable(lang),
		SessionSize:         observe.NewComparable(size),
		CurationMode:        observe.NewComparable(mode),
		OnboardingCompleted: observe.NewComparable(onboarded),
	}, nil
}

func warnFallback(stored map[string]string, key string) {
	if v, ok := stored[key]; ok {
		log.Warn().Str("key", key).Str("value", v).Msg("unparseable preference, using default")
	}
}

// Snapshot returns the current values.
func (s *Store) Snapshot() Values {
	return Values{
		Theme:               s.Theme.Get(),
		Language:            s.Language.Get(),
		SessionSize:         s.SessionSize.Get(),
		CurationMode:        s.CurationMode.Get(),
		OnboardingCompleted: s.OnboardingCompleted.Get(),
	}
}

// SetTheme persists and publishes the theme.
func (s *Store) SetTheme(ctx context.Context, theme ThemeMode) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := db.SetPreference(ctx, s.db, KeyTheme, string(theme)); err != nil {
		return err
	}
	s.Theme.Set(theme)
	return nil
}

// SetLanguage persists and publishes the language.
func (s *Store) SetLanguage(ctx context.Context, lang Language) error {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := db.SetPreference(ctx, s.db, KeyLanguage, string(lang)); err != nil {
		return err
	}
	s.Language.Set(lang)
	return nil
}

// SetSessionSize clamps n, persists and publishes it. Returns the stored value.
func (s *Store) SetSessionSize(ctx context.Context, n int) (int, error) {
	n = ClampSessionSize(n)
	if err := db.SetPreference(ctx, s.db, KeySessionSize, strconv.Itoa(n)); err != nil {
		return 0, err
	}
	s.SessionSize.Set(n)
	return n, nil
}

// SetCurationMode persists and publishes the curation mode.
func (s *Store) SetCurationMode(ctx context.Context, mode photo.CurationMode) error {
	parsed, err := photo.ParseCurationMode(string(mode))
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := db.SetPreference(ctx, s.db, KeyCurationMode, string(parsed)); err != nil {
		return err
	}
	s.CurationMode.Set(parsed)
	return nil
}

// SetOnboardingCompleted persists and publishes the onboarding flag.
func (s *Store) SetOnboardingCompleted(ctx context.Context, done bool) error {
	if err := db.SetPreference(ctx, s.db, KeyOnboardingCompleted, strconv.FormatBool(done)); err != nil {
		return err
	}
	s.OnboardingCompleted.Set(done)
	return nil
}

// Get returns the string form of the preference named key.
func (s *Store) Get(key string) (string, error) {
	v := s.Snapshot()
	switch key {
	case KeyTheme:
		return string(v.Theme), nil
	case KeyLanguage:
		return string(v.Language), nil
	case KeySessionSize:
		return strconv.Itoa(v.SessionSize), nil
	case KeyCurationMode:
		return string(v.CurationMode), nil
	case KeyOnboardingCompleted:
		return strconv.FormatBool(v.OnboardingCompleted), nil
	default:
		return "", errors.NewNotFound("preference", key)
	}
}

// Set parses value for the preference named key and stores it.
func (s *Store) Set(ctx context.Context, key, value string) error {
	switch key {
	case KeyTheme:
		theme, err := ParseTheme(value)
		if err != nil {
			return errors.NewInvalidRequest(err.Error())
		}
		return s.SetTheme(ctx, theme)
	case KeyLanguage:
		lang, err := ParseLanguage(value)
		if err != nil {
			return errors.NewInvalidRequest(err.Error())
		}
		return s.SetLanguage(ctx, lang)
	case KeySessionSize:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return errors.NewInvalidRequest("session_size must be an integer")
		}
		_, err = s.SetSessionSize(ctx, n)
		return err
	case KeyCurationMode:
		return s.SetCurationMode(ctx, photo.CurationMode(value))
	case KeyOnboardingCompleted:
		done, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return errors.NewInvalidRequest("onboarding_completed must be true or false")
		}
		return s.SetOnboardingCompleted(ctx, done)
	default:
		return errors.NewNotFound("preference", key)
	}
}

// Close stops every preference subscription.
func (s *Store) Close() {
	s.Theme.Close()
	s.Language.Close()
	s.SessionSize.Close()
	s.CurationMode.Close()
	s.OnboardingCompleted.Close()
}
