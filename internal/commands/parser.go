package commands

import (
	"regexp"
	"strings"
)

// DefaultPrefixes are the recognized command prefixes.
var DefaultPrefixes = []string{"/", "#"}

// Parser detects and parses commands at the start of message text.
type Parser struct {
	prefixes  []string
	controlRe *regexp.Regexp
}

// NewParser creates a command parser.
func NewParser(prefixes ...string) *Parser {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}

	escaped := make([]string, len(prefixes))
	for i, p := range prefixes {
		escaped[i] = regexp.QuoteMeta(p)
	}
	prefixPattern := strings.Join(escaped, "|")

	return &Parser{
		prefixes:  prefixes,
		// (?s) so multi-line arguments, e.g. pasted JSON, stay intact.
		controlRe: regexp.MustCompile(`(?s)^(` + prefixPattern + `)([a-zA-Z][a-zA-Z0-9_-]*)(?:\s+(.*))?$`),
	}
}

// ParseCommand parses a command invocation from text. Returns nil if
// the text is not a command.
func (p *Parser) ParseCommand(text string) *ParsedCommand {
	text = strings.TrimSpace(text)
	if text == "" || !p.isCommandPrefix(text) {
		return nil
	}

	match := p.controlRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	return &ParsedCommand{
		Name:   strings.ToLower(match[2]),
		Args:   strings.TrimSpace(match[3]),
		Prefix: match[1],
	}
}

// IsCommand checks if text starts with a command prefix followed by a
// letter.
func (p *Parser) IsCommand(text string) bool {
	return p.isCommandPrefix(strings.TrimSpace(text))
}

func (p *Parser) isCommandPrefix(text string) bool {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(text, prefix) && len(text) > len(prefix) {
			next := text[len(prefix)]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') {
				return true
			}
		}
	}
	return false
}

// SplitArgs splits argument text into its first word and the rest, both
// trimmed. Used for subcommand dispatch.
func SplitArgs(text string) (head, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \t\r\n")
	if i < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:i]), strings.TrimSpace(text[i:])
}
