package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Command names the bot answers to.
const (
	CommandTLDR   = "tldr"
	CommandModels = "models"
)

// DefaultHours is the look-back period of a bare /tldr.
const DefaultHours = 1

// Command is a parsed bot command.
type Command struct {
	Name    string
	Mention string // bot username after "@", if any
	Hours   int
	Context string
}

// ParseCommand parses "/name[@bot] [args]". It returns false for text that
// is not a command. For /tldr a leading integer argument is the look-back
// period in hours; everything after it is free-form context.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	head, rest := splitWord(text[1:])
	name, mention, _ := strings.Cut(head, "@")
	name = strings.ToLower(name)
	if name == "" {
		return Command{}, false
	}
	rest = strings.TrimSpace(rest)

	cmd := Command{Name: name, Mention: mention}
	if name != CommandTLDR {
		cmd.Context = rest
		return cmd, true
	}

	cmd.Hours = DefaultHours
	first, tail := splitWord(rest)
	if hours, err := strconv.Atoi(first); err == nil {
		cmd.Hours = hours
		rest = strings.TrimSpace(tail)
	}
	cmd.Context = rest
	return cmd, true
}

// AddressedTo reports whether the command targets the bot named username.
// Commands without a mention address every bot in the chat.
func (c Command) AddressedTo(username string) bool {
	return c.Mention == "" || username == "" || strings.EqualFold(c.Mention, username)
}

// splitWord splits s at its first whitespace.
func splitWord(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// ValidateHours rejects look-back periods outside [1, maxHours].
func ValidateHours(hours, maxHours int) error {
	if hours < 1 || hours > maxHours {
		return fmt.Errorf("hours must be between 1 and %d, got %d", maxHours, hours)
	}
	return nil
}

// Usage is the reply to a malformed /tldr.
func Usage(maxHours int) string {
	return fmt.Sprintf("Usage: /tldr [hours 1-%d] [context]", maxHours)
}
