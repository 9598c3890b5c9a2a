package stamp

import (
    "fmt"
    "regexp"
    "time"
)

const (
    layout14 = "20060102150405"
    layout8  = "20060102"
    layout6  = "150405"
)

var (
    defaultLoc = time.UTC
    candidate  = regexp.MustCompile(`20\d{12}`)
)

// SetDefaultLocation sets the zone terminal timestamps are interpreted in (fallback UTC).
func SetDefaultLocation(loc *time.Location) {
    if loc != nil {
        defaultLoc = loc
    }
}

// DefaultLocation returns the zone set by SetDefaultLocation.
func DefaultLocation() *time.Location {
    return defaultLoc
}

// Format14 renders t as YYYYMMDDhhmmss in the default location.
func Format14(t time.Time) string {
    return t.In(defaultLoc).Format(layout14)
}

// Date8 renders t as YYYYMMDD in the default location.
func Date8(t time.Time) string {
    return t.In(defaultLoc).Format(layout8)
}

// Time6 renders t as hhmmss in the default location.
func Time6(t time.Time) string {
    return t.In(defaultLoc).Format(layout6)
}

// Parse14 parses YYYYMMDDhhmmss in loc (default location when nil).
func Parse14(s string, loc *time.Location) (time.Time, error) {
    if err := Validate14(s); err != nil {
        return time.Time{}, err
    }
    if loc == nil {
        loc = defaultLoc
    }
    return time.ParseInLocation(layout14, s, loc)
}

// Plausible14 reports whether s looks like a 21st century YYYYMMDDhhmmss stamp.
func Plausible14(s string) bool {
    return len(s) == 14 && s[0] == '2' && s[1] == '0' && Validate14(s) == nil
}

// Scan returns the first 20xxMMDDhhmmss run in s that is also a real calendar
// instant. ok is false when none is found.
func Scan(s string, loc *time.Location) (t time.Time, ok bool) {
    for _, m := range candidate.FindAllString(s, -1) {
        if parsed, err := Parse14(m, loc); err == nil {
            return parsed, true
        }
    }
    return time.Time{}, false
}

// Validate14 checks that s is 14 ASCII digits.
func Validate14(s string) error {
    if len(s) != 14 {
        return fmt.Errorf("timestamp must be YYYYMMDDhhmmss (14 digits), got %d", len(s))
    }
    for i := 0; i < len(s); i++ {
        if s[i] < '0' || s[i] > '9' {
            return fmt.Errorf("timestamp must be digits: YYYYMMDDhhmmss")
        }
    }
    return nil
}

// ValidateDate8 checks that s is a real YYYYMMDD calendar date.
func ValidateDate8(s string) error {
    if len(s) != 8 {
        return fmt.Errorf("date must be YYYYMMDD (8 digits)")
    }
    if _, err := time.Parse(layout8, s); err != nil {
        return fmt.Errorf("date must be YYYYMMDD: %w", err)
    }
    return nil
}

// ValidateTime6 checks that s is a real hhmmss time of day.
func ValidateTime6(s string) error {
    if len(s) != 6 {
        return fmt.Errorf("time must be hhmmss (6 digits)")
    }
    if _, err := time.Parse(layout6, s); err != nil {
        return fmt.Errorf("time must be hhmmss: %w", err)
    }
    return nil
}
