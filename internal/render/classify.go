package render

import (
	"fmt"
	"strings"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
)

// Outcome is a classified parser result.
type Outcome struct {
	Kind protocol.ResultKind

	// Abilities is the value under "abilities" (KindTree only).
	Abilities Value

	// Message is the error text (KindError) or the raw result (KindMalformed).
	Message string

	// Err is the structured decode failure (KindMalformed only).
	Err error
}

// Classify decides whether result is an ability tree or an error message.
// Only a result starting with `{"abilities"` is decoded; one that then fails
// to decode is reported as malformed rather than as a parser error.
func Classify(result string) Outcome {
	if !strings.HasPrefix(result, protocol.AbilityTreePrefix) {
		return Outcome{Kind: protocol.ResultKindError, Message: result}
	}

	value, err := Decode(result)
	if err != nil {
		return Outcome{Kind: protocol.ResultKindMalformed, Message: result, Err: err}
	}

	root, ok := value.(Mapping)
	if !ok {
		return Outcome{
			Kind:    protocol.ResultKindMalformed,
			Message: result,
			Err:     fmt.Errorf("payload is not an object"),
		}
	}

	abilities, ok := root.Get(protocol.AbilitiesKey)
	if !ok {
		return Outcome{
			Kind:    protocol.ResultKindMalformed,
			Message: result,
			Err:     fmt.Errorf("payload has no %q key", protocol.AbilitiesKey),
		}
	}

	return Outcome{Kind: protocol.ResultKindTree, Abilities: abilities}
}
