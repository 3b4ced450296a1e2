package arxml

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Format is a named string format usable in CharacterDataSpec.Format
type Format struct {
	Name      string
	Validator func(value string) error
}

var (
	formatsMu sync.RWMutex
	formats   = map[string]*Format{}
)

func init() {
	registerBuiltinFormats()
}

func registerBuiltinFormats() {
	RegisterFormat("dateTime", validateDateTime)
	RegisterFormat("date", validateDate)
	RegisterFormat("boolean", validateBoolean)
	RegisterFormat("identifier", validateIdentifier)
	RegisterFormat("path", validatePath)
	RegisterFormat("ref", validatePath)
	RegisterFormat("NCName", validateNCName)
	RegisterFormat("token", validateToken)
	RegisterFormat("anyURI", validateAnyURI)
	RegisterFormat("hexBinary", validateHexBinary)
	RegisterFormat("revisionLabel", validateRevisionLabel)
}

// RegisterFormat adds or replaces a named format
func RegisterFormat(name string, validator func(value string) error) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[name] = &Format{Name: name, Validator: validator}
}

// GetFormat returns a registered format or nil
func GetFormat(name string) *Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	return formats[name]
}

var (
	identifierPattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	pathPattern          = regexp.MustCompile(`^/?[A-Za-z][A-Za-z0-9_]*(/[A-Za-z][A-Za-z0-9_]*)*$`)
	datePattern          = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(Z|[+-]\d{2}:\d{2})?$`)
	revisionLabelPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+([._;].*)?$`)
)

func validateBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	default:
		return fmt.Errorf("invalid boolean value: %s", value)
	}
}

func validateDateTime(value string) error {
	formats := []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05.999Z",
		"2006-01-02T15:04:05.999-07:00",
	}

	for _, format := range formats {
		if _, err := time.Parse(format, value); err == nil {
			return nil
		}
	}

	return fmt.Errorf("invalid dateTime value: %s", value)
}

func validateDate(value string) error {
	if !datePattern.MatchString(value) {
		return fmt.Errorf("invalid date value: %s", value)
	}
	if _, err := time.Parse("2006-01-02", value[:10]); err != nil {
		return fmt.Errorf("invalid date value: %s", value)
	}
	return nil
}

// validateIdentifier checks the item name syntax of identifiable elements
func validateIdentifier(value string) error {
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("invalid identifier: %q", value)
	}
	return nil
}

// validatePath checks the syntax of a reference path, absolute or relative
func validatePath(value string) error {
	if !pathPattern.MatchString(value) {
		return fmt.Errorf("invalid path: %q", value)
	}
	return nil
}

func validateNCName(value string) error {
	if value == "" {
		return fmt.Errorf("NCName cannot be empty")
	}
	for i, r := range value {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("invalid NCName: %s", value)
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return fmt.Errorf("invalid NCName: %s", value)
		}
	}
	return nil
}

func validateToken(value string) error {
	if strings.ContainsAny(value, "\t\n\r") {
		return fmt.Errorf("token cannot contain tab, newline, or carriage return")
	}
	if strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") {
		return fmt.Errorf("token cannot have leading or trailing spaces")
	}
	if strings.Contains(value, "  ") {
		return fmt.Errorf("token cannot contain consecutive spaces")
	}
	return nil
}

func validateAnyURI(value string) error {
	if _, err := url.Parse(value); err != nil {
		return fmt.Errorf("invalid anyURI value: %s", value)
	}
	return nil
}

func validateHexBinary(value string) error {
	if len(value)%2 != 0 {
		return fmt.Errorf("hexBinary must have even length")
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("invalid hexBinary value: %s", value)
	}
	return nil
}

func validateRevisionLabel(value string) error {
	if !revisionLabelPattern.MatchString(value) {
		return fmt.Errorf("invalid revision label: %s", value)
	}
	return nil
}
