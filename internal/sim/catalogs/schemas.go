package catalogs

const itemsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "kind", "volume"],
    "additionalProperties": false,
    "properties": {
      "id": {"type": "string", "pattern": "^[A-Z0-9_]+$"},
      "kind": {"enum": ["ORE", "INGOT", "COMPONENT"]},
      "volume": {"type": "number", "exclusiveMinimum": 0}
    }
  }
}`

const materialsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name"],
    "additionalProperties": false,
    "properties": {
      "id": {"type": "integer", "minimum": 1, "maximum": 255},
      "name": {"type": "string", "minLength": 1},
      "item_id": {"type": "string"},
      "yield_ratio": {"type": "number", "exclusiveMinimum": 0}
    },
    "dependencies": {"item_id": ["yield_ratio"]}
  }
}`
