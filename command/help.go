package command

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// HelpSeparator splits the user section from the admin section.
const HelpSeparator = "~~~"

//go:embed help.md
var defaultHelp string

// Help holds the two sections of the help text.
type Help struct {
	User  string
	Admin string
}

// ParseHelp splits text on the first HelpSeparator.
func ParseHelp(text string) Help {
	user, admin, _ := strings.Cut(text, HelpSeparator)
	return Help{User: strings.TrimSpace(user), Admin: strings.TrimSpace(admin)}
}

// DefaultHelp returns the built-in help text.
func DefaultHelp() Help {
	return ParseHelp(defaultHelp)
}

// LoadHelp reads a help file. An empty path returns the built-in text.
func LoadHelp(path string) (Help, error) {
	if path == "" {
		return DefaultHelp(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Help{}, fmt.Errorf("failed to read help file: %w", err)
	}
	return ParseHelp(string(data)), nil
}

// expandHelp substitutes the {prefix} and {bot} placeholders.
func expandHelp(text, prefix, bot string) string {
	return strings.NewReplacer("{prefix}", prefix, "{bot}", bot).Replace(text)
}
