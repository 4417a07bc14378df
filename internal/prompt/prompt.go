// Package prompt turns a translation direction and raw user text into the
// instruction pair sent to a text generation backend.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Direction names which way a translation goes.
type Direction string

const (
	HumanToSQL Direction = "human_to_sql"
	SQLToHuman Direction = "sql_to_human"
)

// Errors returned for input that can never be translated.
var (
	ErrEmptyInput       = errors.New("input text is empty")
	ErrUnknownDirection = errors.New("unknown translation direction")
)

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == HumanToSQL || d == SQLToHuman
}

// ParseDirection accepts the canonical names plus the short forms used by
// the CLI and Lambda payloads.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(HumanToSQL), "human-to-sql", "to-sql", "sql":
		return HumanToSQL, nil
	case string(SQLToHuman), "sql-to-human", "to-human", "human", "explain":
		return SQLToHuman, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, raw)
	}
}

// Payload is the system instruction and user message for one generation call.
type Payload struct {
	Direction Direction
	System    string
	User      string
}

const humanToSQLSystem = "You translate natural language requests into SQL. " +
	"Reply with exactly one SQL statement and nothing else: no explanation, no markdown, no code fences. " +
	"Do not change the case of values the user wrote; copy string literals exactly as given. " +
	"Write SQL keywords in upper case."

const sqlToHumanSystem = "You explain SQL queries in plain language. " +
	"Reply with a single sentence describing what the query returns or changes. " +
	"Do not repeat the query and do not use markdown."

// Build is pure: the same direction and text always yield the same payload.
func Build(direction Direction, inputText string) (Payload, error) {
	if !direction.Valid() {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownDirection, direction)
	}
	text := norm.NFC.String(strings.TrimSpace(inputText))
	if text == "" {
		return Payload{}, ErrEmptyInput
	}

	switch direction {
	case HumanToSQL:
		return Payload{
			Direction: direction,
			System:    humanToSQLSystem,
			User:      "Translate this natural language query into SQL:\n\n" + text,
		}, nil
	default:
		return Payload{
			Direction: direction,
			System:    sqlToHumanSystem,
			User:      "Translate this SQL query into natural language:\n\n" + text,
		}, nil
	}
}
