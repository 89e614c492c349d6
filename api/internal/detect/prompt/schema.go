package prompt

// DetectSchema describes the verdict object the model must return.
const DetectSchema = `{
  "type": "object",
  "properties": {
    "prediction": {"type": "string", "enum": ["AI_GENERATED", "HUMAN"]},
    "confidence": {"type": "number", "description": "0..1"},
    "reasoning": {"type": "string", "description": "acoustic markers found"},
    "detected_language": {"type": "string", "description": "locale actually heard, e.g. te-IN"}
  },
  "required": ["prediction", "confidence", "reasoning", "detected_language"]
}`

// CalibrationSchema describes the one-sentence lesson returned for a disputed clip.
const CalibrationSchema = `{
  "type": "object",
  "properties": {
    "lesson": {"type": "string", "description": "one sentence naming the forensic marker that was missed"}
  },
  "required": ["lesson"]
}`
