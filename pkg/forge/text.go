package forge

import (
	"strings"
)

var eolEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r")

// compileText appends eol to every line up to the first blank line. A
// blank first line still produces one eol.
func compileText(c *Compiler, params map[string]string) ([]byte, error) {
	eol := eolEscapes.Replace(params["eol"])

	var out []byte
	first := true
	for {
		raw, err := c.readBodyLine()
		if err != nil {
			return nil, err
		}
		line := strings.TrimRight(raw, "\r\n")
		empty := line == ""
		if !empty || first {
			out = append(out, line...)
			out = append(out, eol...)
		}
		if empty {
			break
		}
		first = false
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
