package slackbot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// Usage is sent back when a mention cannot be parsed.
const Usage = "Usage: `post` or `post all`, optionally followed by a period and year, e.g. `post all second_quarter 2025`."

var mentionRe = regexp.MustCompile(`<@[^>]+>`)

// ErrUnknownCommand is returned for any mention that is not a post command.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a parsed post request.
type Command struct {
	All    bool
	Period domain.Period
	Year   int
	// Explicit is false when the period defaulted to the current quarter.
	Explicit bool
}

// Scope describes whether the command posts every filing or only relevant ones.
func (c Command) Scope() string {
	if c.All {
		return "all"
	}
	return "tech-related"
}

// ParseCommand reads "post [all] [<period> <year>]" from a mention's text.
func ParseCommand(text string, now time.Time) (Command, error) {
	fields := strings.Fields(strings.ToLower(mentionRe.ReplaceAllString(text, " ")))
	if len(fields) == 0 || fields[0] != "post" {
		return Command{}, ErrUnknownCommand
	}
	fields = fields[1:]

	var cmd Command
	if len(fields) > 0 && fields[0] == "all" {
		cmd.All = true
		fields = fields[1:]
	}

	switch len(fields) {
	case 0:
		cmd.Period, cmd.Year = domain.CurrentPeriod(now)
		return cmd, nil
	case 2:
		period, err := domain.ParsePeriod(fields[0])
		if err != nil {
			return Command{}, err
		}
		year, err := strconv.Atoi(fields[1])
		if err != nil || year < 1999 || year > now.Year()+1 {
			return Command{}, fmt.Errorf("invalid year %q", fields[1])
		}
		cmd.Period, cmd.Year, cmd.Explicit = period, year, true
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: expected a period and a year", ErrUnknownCommand)
	}
}
