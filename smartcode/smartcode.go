// Package smartcode is the single parser/validator for the governed smart-code
// strings attached to every entity, relationship, transaction and line.
//
// A smart code has the shape
//
//	HERA.<INDUSTRY>.<SEG>.<SEG>.<SEG>[...].v<N>
//
// where INDUSTRY is 3-15 uppercase alphanumerics, followed by 3 to 8 segments
// of 2-30 uppercase alphanumerics/underscores, terminated by a lowercase "v"
// plus an integer version. Anything else is rejected outright; there is no
// partial leniency.
package smartcode

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const Prefix = "HERA"

var ErrInvalidSmartCode = errors.New("invalid smart code")

var codePattern = regexp.MustCompile(`^` + Prefix + `\.[A-Z0-9]{3,15}(?:\.[A-Z0-9_]{2,30}){3,8}\.v[0-9]+$`)

// SmartCode is the structured form of a validated code.
type SmartCode struct {
	Industry string
	Segments []string
	Version  int
}

// Parse validates code against the governed pattern and returns its components.
func Parse(code string) (*SmartCode, error) {
	if !codePattern.MatchString(code) {
		return nil, ErrInvalidSmartCode
	}
	parts := strings.Split(code, ".")
	// parts: HERA, industry, segments..., vN
	version, err := strconv.Atoi(strings.TrimPrefix(parts[len(parts)-1], "v"))
	if err != nil {
		return nil, ErrInvalidSmartCode
	}
	return &SmartCode{
		Industry: parts[1],
		Segments: parts[2 : len(parts)-1],
		Version:  version,
	}, nil
}

// Validate reports whether code matches the governed pattern.
func Validate(code string) bool {
	return codePattern.MatchString(code)
}

// String reassembles the canonical dotted form.
func (s *SmartCode) String() string {
	return Prefix + "." + s.Industry + "." + strings.Join(s.Segments, ".") + ".v" + strconv.Itoa(s.Version)
}
