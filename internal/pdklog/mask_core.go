package pdklog

import (
	"regexp"

	"go.uber.org/zap/zapcore"

	"github.com/pipelinedk/pdk/internal/variables"
)

// maskingCore wraps a zapcore.Core so that no sink downstream of it —
// console, file, or JSON — ever receives a raw secret.
type maskingCore struct {
	zapcore.Core
	masker   *variables.Masker
	noRedact bool
}

var sensitiveFieldName = regexp.MustCompile(`(?i)password|token|secret|key`)

func newMaskingCore(core zapcore.Core, masker *variables.Masker, noRedact bool) zapcore.Core {
	return &maskingCore{Core: core, masker: masker, noRedact: noRedact}
}

// With propagates masking to every derived logger (the *Logger.With builder).
func (c *maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskingCore{Core: c.Core.With(c.maskFields(fields)), masker: c.masker, noRedact: c.noRedact}
}

// Check delegates straight through; masking happens in Write once a record
// is actually going to be emitted, not during the (cheap, frequent) Check
// call zap uses to decide if logging is enabled.
func (c *maskingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *maskingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if c.noRedact || c.masker == nil {
		return c.Core.Write(ent, fields)
	}
	ent.Message = c.masker.Mask(ent.Message)
	return c.Core.Write(ent, c.maskFields(fields))
}

// maskFields masks each string-valued field: a sensitive-looking key name is
// replaced wholesale; every other string field is passed through Mask, which
// still strips any registered secret value or embedded URL credential.
func (c *maskingCore) maskFields(fields []zapcore.Field) []zapcore.Field {
	if c.noRedact || c.masker == nil {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if f.Type == zapcore.StringType {
			switch {
			case sensitiveFieldName.MatchString(f.Key) && len(f.String) >= variables.MinSecretLength:
				f.String = maskedValue(f.String)
			default:
				f.String = c.masker.Mask(f.String)
			}
		}
		out[i] = f
	}
	return out
}

func maskedValue(s string) string {
	n := len(s)
	switch {
	case n < variables.MinStars:
		n = variables.MinStars
	case n > variables.MaxStars:
		n = variables.MaxStars
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = '*'
	}
	return string(b)
}
