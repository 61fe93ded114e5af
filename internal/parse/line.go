// Package parse holds the pure text-level parsers for EVE chat logs:
// line splitting and the status keyword heuristic.
package parse

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp format EVE writes into chat logs, always UTC.
const TimeLayout = "2006.01.02 15:04:05"

// ParseError reports a line that does not follow the chat-log format.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s: %q", e.Reason, e.Line)
}

// Line is the structured form of one chat-log line.
type Line struct {
	UTC  time.Time
	User string
	Text string
}

// ParseLine splits a raw log line of the form
//
//	[2024.01.15 20:00:00] Username> message text
//
// into its parts. The timestamp is interpreted as UTC. A ParseError is
// fatal only for the offending line; callers log and move on.
func ParseLine(raw string) (Line, error) {
	open := strings.Index(raw, "[")
	if open < 0 {
		return Line{}, &ParseError{Line: raw, Reason: "no timestamp bracket"}
	}
	closing := strings.Index(raw[open:], "]")
	if closing < 0 {
		return Line{}, &ParseError{Line: raw, Reason: "unterminated timestamp"}
	}
	closing += open

	stamp := strings.TrimSpace(raw[open+1 : closing])
	utc, err := time.ParseInLocation(TimeLayout, stamp, time.UTC)
	if err != nil {
		return Line{}, &ParseError{Line: raw, Reason: "bad timestamp " + stamp}
	}

	rest := raw[closing+1:]
	gt := strings.Index(rest, ">")
	if gt < 0 {
		return Line{}, &ParseError{Line: raw, Reason: "no sender delimiter"}
	}

	return Line{
		UTC:  utc,
		User: strings.TrimSpace(rest[:gt]),
		Text: strings.TrimSpace(rest[gt+1:]),
	}, nil
}

// Punctuation is the set of characters ignored when tokenizing chat text.
const Punctuation = "*?,!.()+:"

// Strip removes ignorable punctuation anywhere in s.
func Strip(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(Punctuation, r) {
			return -1
		}
		return r
	}, s)
}
