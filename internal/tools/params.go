package tools

import (
	"encoding/json"
	"sort"
	"strings"
)

// ignoredParamsNote lists argument keys a tool does not accept. The note is
// put in front of the tool output so the model learns the parameter had no
// effect. It is empty when every key is known or args is not an object.
func ignoredParamsNote(args json.RawMessage, accepted ...string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return ""
	}
	for _, k := range accepted {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return ""
	}
	ignored := make([]string, 0, len(fields))
	for k := range fields {
		ignored = append(ignored, k)
	}
	sort.Strings(ignored)
	return "note: ignored unknown parameters: " + strings.Join(ignored, ", ") + "\n"
}
