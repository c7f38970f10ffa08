package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains the values a smallvm.toml may hold. Key names are
// checked separately by the TOML decoder.
const schemaSource = `
#Config: {
	machine?: {
		"heap-capacity"?: int & >=0 & <=65536
		fetch?:           "sequential" | "jump"
		"max-steps"?:     int & >=0
	}
	trace?: {
		enabled?: bool
		journal?: string
	}
	log?: {
		verbosity?: int & >=0 & <=5
		file?:      string
	}
}
`

// validate checks decoded TOML against the configuration schema.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
