package session

import (
	"strings"

	"example.com/bmppatch/internal/bmp"
)

// Command maps one menu token to the field it patches.
type Command struct {
	Token string
	Field bmp.Field
	// Coupled commands store the header size and derive the data offset.
	Coupled bool
}

func (c Command) Label() string {
	if c.Coupled {
		return "Header size (and data offset)"
	}
	return c.Field.Label
}

// ExitToken ends the command loop.
const ExitToken = "0"

// Commands returns the patch menu of v. Unknown has none.
func Commands(v bmp.Variant) []Command {
	field := func(name string) bmp.Field { return bmp.MustField(v, name) }
	coupled := Command{Field: bmp.FieldHeaderSize, Coupled: true}
	switch v {
	case bmp.VariantCore:
		return []Command{
			{Token: "1", Field: field("width")},
			{Token: "2", Field: field("height")},
			{Token: "3", Field: field("bits_per_pixel")},
			withToken(coupled, "4"),
			{Token: "5", Field: field("planes")},
		}
	case bmp.VariantInfo:
		return []Command{
			{Token: "1", Field: field("width")},
			{Token: "2", Field: field("height")},
			{Token: "3", Field: field("bits_per_pixel")},
			{Token: "4", Field: field("compression")},
			{Token: "5", Field: field("image_size")},
			{Token: "6", Field: field("x_resolution")},
			{Token: "7", Field: field("y_resolution")},
			{Token: "8", Field: field("colors_used")},
			{Token: "9", Field: field("colors_important")},
			withToken(coupled, "A"),
			{Token: "B", Field: bmp.FieldDataOffset},
			{Token: "C", Field: field("planes")},
		}
	}
	return nil
}

func withToken(c Command, token string) Command {
	c.Token = token
	return c
}

// Lookup resolves a typed token against cmds. Tokens are case-insensitive.
func Lookup(cmds []Command, token string) (Command, bool) {
	token = strings.TrimSpace(token)
	for _, c := range cmds {
		if strings.EqualFold(c.Token, token) {
			return c, true
		}
	}
	return Command{}, false
}
