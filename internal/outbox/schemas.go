package outbox

const activityCreatedSchema = `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "string"},
    "title": {"type": "string"},
    "category": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "end_time": {"type": "string", "format": "date-time"},
    "max_participants": {"type": "integer"},
    "creator_id": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "title", "category", "start_time", "end_time", "max_participants", "creator_id", "created_at"],
  "additionalProperties": false
}`

const participantRegisteredSchema = `{
  "type": "object",
  "title": "ParticipantRegistered",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "joined_at": {"type": "string", "format": "date-time"},
    "participant_count": {"type": "integer"}
  },
  "required": ["activity_id", "user_id", "joined_at", "participant_count"],
  "additionalProperties": false
}`

const participantCheckedInSchema = `{
  "type": "object",
  "title": "ParticipantCheckedIn",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "checked_in_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "checked_in_at"],
  "additionalProperties": false
}`
