package pdkconfig

// schemaJSON is the structural JSON Schema for the
// configuration file: required top-level `version`, typed optional
// sections, unknown keys preserved but not required (the schema omits
// "additionalProperties: false" for exactly that reason).
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version"],
  "properties": {
    "version": {"type": "string", "enum": ["1.0"]},
    "variables": {
      "type": "object",
      "patternProperties": {
        "^[A-Z_][A-Z0-9_]*$": {"type": "string"}
      }
    },
    "secrets": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "runner": {
      "type": "object",
      "properties": {
        "backend": {"type": "string", "enum": ["auto", "docker", "host"]},
        "fallback": {"type": "string", "enum": ["host", "none"]},
        "memoryLimit": {"type": "string", "pattern": "^[0-9]+[kKmMgG]$"},
        "cpuLimit": {"type": "number", "minimum": 0.1},
        "networkMode": {"type": "string"},
        "imageOverride": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "artifacts": {
      "type": "object",
      "properties": {
        "root": {"type": "string"},
        "retentionDays": {"type": "integer", "minimum": 0}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["Error", "Warning", "Information", "Debug", "Trace"]},
        "console": {"type": "boolean"},
        "file": {"type": "string"},
        "json": {"type": "string"},
        "maxSizeMB": {"type": "integer", "minimum": 0},
        "maxBackups": {"type": "integer", "minimum": 0},
        "maxAgeDays": {"type": "integer", "minimum": 0},
        "noRedact": {"type": "boolean"}
      }
    },
    "features": {
      "type": "object",
      "properties": {
        "requireDependencies": {"type": "boolean"},
        "confirmBeforeRun": {"type": "boolean"},
        "hostModeWarnings": {"type": "boolean"}
      }
    },
    "performance": {
      "type": "object",
      "properties": {
        "containerReuse": {"type": "boolean"},
        "imageCache": {"type": "boolean"},
        "parallelSteps": {"type": "boolean"},
        "maxParallelism": {"type": "integer", "minimum": 0},
        "cacheMounts": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "stepFiltering": {
      "type": "object",
      "properties": {
        "presets": {"type": "object", "additionalProperties": {"type": "string"}},
        "fuzzyThreshold": {"type": "integer", "minimum": 0}
      }
    }
  }
}`
