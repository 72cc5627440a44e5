package cli

import "github.com/pipelinedk/pdk/internal/pdklog"

// artifactLogAdapter bridges *pdklog.Logger's map-based Info/Warn/Error onto
// internal/artifact.Logger's variadic key-value shape, so the store can log
// through the same sinks and masking core as the rest of the engine.
type artifactLogAdapter struct {
	log *pdklog.Logger
}

func (a artifactLogAdapter) Debug(msg string, args ...interface{}) {
	a.log.Debug(msg, fieldsFromArgs(args))
}

func (a artifactLogAdapter) Warn(msg string, args ...interface{}) {
	a.log.Warn(msg, fieldsFromArgs(args))
}

func (a artifactLogAdapter) Error(msg string, args ...interface{}) {
	a.log.Error(msg, fieldsFromArgs(args))
}

// fieldsFromArgs turns a SugaredLogger-style alternating key/value slice
// into a fields map; a trailing unpaired key is kept under its own name with
// a nil value.
func fieldsFromArgs(args []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	if len(args)%2 == 1 {
		if key, ok := args[len(args)-1].(string); ok {
			fields[key] = nil
		}
	}
	return fields
}
