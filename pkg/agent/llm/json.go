package llm

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalArgs decodes model-emitted tool-call argument JSON. Models
// occasionally emit malformed JSON (trailing commas, single quotes); on a
// syntax error the payload is run through jsonrepair before retrying.
func unmarshalArgs(data string) (map[string]any, error) {
	args := make(map[string]any)
	err := json.Unmarshal([]byte(data), &args)
	if err == nil {
		return args, nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(data)
		if rerr != nil {
			return nil, err
		}
		if uerr := json.Unmarshal([]byte(fixed), &args); uerr == nil {
			return args, nil
		}
	}
	return nil, err
}
