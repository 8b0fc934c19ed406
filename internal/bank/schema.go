package bank

// questionSchema validates one question file: an array of items each naming
// the question (id or question_id) and its text, with an optional scoring
// rule limited to the supported rule types.
var questionSchema = []byte(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "string"},
      "question_id": {"type": "string"},
      "text": {"type": "string"},
      "audio_url": {"type": "string"},
      "exclude_from_scoring": {"type": "boolean"},
      "recording_disabled": {"type": "boolean"},
      "scoring_rule": {
        "type": "object",
        "properties": {
          "type": {
            "type": "string",
            "enum": ["exact", "contains_any", "contains_all", "fuzzy", "numeric_range", "sequence_subtract"]
          },
          "expected": {"type": "array", "items": {"type": "string"}},
          "min_value": {"type": "number"},
          "max_value": {"type": "number"},
          "threshold": {"type": "number", "minimum": 0, "maximum": 1},
          "start": {"type": "number"},
          "step": {"type": "number"},
          "count": {"type": "integer", "minimum": 0},
          "min_correct": {"type": "integer", "minimum": 0}
        },
        "required": ["type"]
      }
    },
    "anyOf": [
      {"required": ["id", "text"]},
      {"required": ["question_id", "text"]}
    ]
  }
}`)
