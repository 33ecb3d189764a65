package command

import "strings"

// Parameters is a parsed command line.
type Parameters struct {
	Name      string   `json:"name"`
	Arguments []string `json:"arguments"`
	// Mention is the bot username from "/cmd@bot", without the '@'.
	Mention string `json:"mention,omitempty"`
}

// Parse splits a "/name arg..." line into a lower-cased command name and its
// arguments. Lines containing '_' are split on '_' instead of ' ' so that
// deep links such as "/start_payload" carry their payload as an argument.
func Parse(line string) Parameters {
	sep := " "
	if strings.Contains(line, "_") {
		sep = "_"
	}

	parts := strings.Split(line, sep)
	name := strings.TrimPrefix(parts[0], "/")

	var mention string
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name, mention = name[:at], name[at+1:]
	}

	args := make([]string, 0, len(parts)-1)
	args = append(args, parts[1:]...)

	return Parameters{
		Name:      strings.ToLower(name),
		Arguments: args,
		Mention:   mention,
	}
}

// IsCommand reports whether text is a command line.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}
