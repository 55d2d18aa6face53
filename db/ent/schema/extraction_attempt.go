package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/db/ent/schema/utils"
)

// ExtractionAttempt records one call into the extraction core. The text
// itself is never stored here.
type ExtractionAttempt struct{ ent.Schema }

func (ExtractionAttempt) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "extraction_attempt"},
	}
}

func (ExtractionAttempt) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("content_hash").NotEmpty(),
		field.String("name"),
		field.String("format").NotEmpty().
			Validate(utils.EnumValidator(formatNames()...)),
		field.String("method").Default(string(constants.MethodNone)),
		field.String("status").NotEmpty().
			Validate(utils.EnumValidator(
				string(constants.AttemptStatusRunning),
				string(constants.AttemptStatusTextOK),
				string(constants.AttemptStatusEmpty),
				string(constants.AttemptStatusFailed),
			)),
		field.Int("pages").Default(0),
		field.Int("attempted_units").Default(0),
		field.Int("succeeded_units").Default(0),
		field.Int("chars").Default(0),
		field.Bool("scanned").Default(false),
		field.Bool("ocr_fallback").Default(false),
		field.Bool("timed_out").Default(false),
		field.Int64("duration_ms").Default(0),
		field.String("error_message").Optional().Nillable(),
		field.Time("started_at").Default(time.Now),
		field.Time("finished_at").Optional().Nillable(),
	}
}

func (ExtractionAttempt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("content_hash", "started_at"),
		index.Fields("status", "started_at"),
	}
}

func formatNames() []string {
	out := make([]string, 0, len(constants.Formats)+1)
	for _, f := range constants.Formats {
		out = append(out, string(f))
	}
	return append(out, string(constants.UNSUPPORTED))
}
