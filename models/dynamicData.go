package models

import (
	"context"
	"fmt"
	"time"

	"github.com/heraerp/universal_backend/smartcode"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DynamicData holds one typed attribute attached to an entity outside its
// fixed columns. Exactly one value column is populated, selected by FieldType.
// (entity_id, field_name) is unique: an upsert replaces the value, and fields
// omitted from an update are untouched.
type DynamicData struct {
	ID             int    `gorm:"primary_key" json:"id"`
	OrganizationId string `gorm:"type:char(36);index;not null" json:"organization_id"`
	EntityId       string `gorm:"type:char(36);not null;uniqueIndex:idx_dynamic_entity_field" json:"entity_id"`
	FieldName      string `gorm:"size:100;not null;uniqueIndex:idx_dynamic_entity_field" json:"field_name"`

	FieldType         FieldType        `gorm:"type:enum('text','number','boolean','date','json');default:text" json:"field_type"`
	FieldValueText    *string          `gorm:"type:text" json:"field_value_text"`
	FieldValueNumber  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"field_value_number"`
	FieldValueBoolean *bool            `json:"field_value_boolean"`
	FieldValueDate    *time.Time       `json:"field_value_date"`
	FieldValueJson    JSONMap          `gorm:"type:json" json:"field_value_json"`

	SmartCode string    `gorm:"size:255;not null" json:"smart_code"`
	CreatedBy int       `json:"created_by"`
	UpdatedBy int       `json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewDynamicField is the {value, type, smart_code} triple callers supply,
// keyed by field name in the request's dynamic map.
type NewDynamicField struct {
	Value     interface{} `json:"value"`
	Type      FieldType   `json:"type"`
	SmartCode string      `json:"smart_code"`
}

// Value returns the populated typed value of a persisted dynamic field.
func (d *DynamicData) Value() interface{} {
	switch d.FieldType {
	case FieldTypeNumber:
		if d.FieldValueNumber != nil {
			return *d.FieldValueNumber
		}
	case FieldTypeBoolean:
		if d.FieldValueBoolean != nil {
			return *d.FieldValueBoolean
		}
	case FieldTypeDate:
		if d.FieldValueDate != nil {
			return *d.FieldValueDate
		}
	case FieldTypeJson:
		if d.FieldValueJson != nil {
			return d.FieldValueJson
		}
	default:
		if d.FieldValueText != nil {
			return *d.FieldValueText
		}
	}
	return nil
}

// toRow converts the input triple into a row, coercing the value into the
// declared type. A value that cannot be coerced is a VALIDATION failure.
func (f *NewDynamicField) toRow(organizationId string, entityId string, fieldName string, actorUserId int) (*DynamicData, error) {
	if fieldName == "" {
		return nil, NewApiError(ErrCodeValidation, "dynamic field name is required")
	}
	fieldType := f.Type
	if fieldType == "" {
		fieldType = FieldTypeText
	}
	if !fieldType.Valid() {
		return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("invalid field type %q for %q", f.Type, fieldName))
	}
	if f.SmartCode != "" && !smartcode.Validate(f.SmartCode) {
		return nil, NewApiError(ErrCodeInvalidSmartCode, "invalid smart code on dynamic field "+fieldName)
	}

	row := DynamicData{
		OrganizationId: organizationId,
		EntityId:       entityId,
		FieldName:      fieldName,
		FieldType:      fieldType,
		SmartCode:      f.SmartCode,
		CreatedBy:      actorUserId,
		UpdatedBy:      actorUserId,
	}

	switch fieldType {
	case FieldTypeNumber:
		num, err := coerceDecimal(f.Value)
		if err != nil {
			return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("field %q is not a number", fieldName))
		}
		row.FieldValueNumber = &num
	case FieldTypeBoolean:
		b, ok := f.Value.(bool)
		if !ok {
			return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("field %q is not a boolean", fieldName))
		}
		row.FieldValueBoolean = &b
	case FieldTypeDate:
		s, ok := f.Value.(string)
		if !ok {
			return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("field %q is not a date string", fieldName))
		}
		d, err := parseDateValue(s)
		if err != nil {
			return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("field %q is not a valid date", fieldName))
		}
		row.FieldValueDate = &d
	case FieldTypeJson:
		m, ok := f.Value.(map[string]interface{})
		if !ok {
			return nil, NewApiError(ErrCodeValidation, fmt.Sprintf("field %q is not a json object", fieldName))
		}
		row.FieldValueJson = JSONMap(m)
	default:
		s := fmt.Sprint(f.Value)
		row.FieldValueText = &s
	}

	return &row, nil
}

func coerceDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("cannot coerce %T to decimal", v)
	}
}

func parseDateValue(s string) (time.Time, error) {
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	return time.Parse("2006-01-02", s)
}

// upsertDynamicFields writes the supplied fields inside the caller's
// transaction. Writes are additive at the API boundary: omitted fields are
// untouched, supplied fields replace their prior value.
func upsertDynamicFields(ctx context.Context, tx *gorm.DB, organizationId string, entityId string, actorUserId int, fields map[string]*NewDynamicField) ([]*DynamicData, error) {
	rows := make([]*DynamicData, 0, len(fields))
	for name, input := range fields {
		if input == nil {
			continue
		}
		row, err := input.toRow(organizationId, entityId, name, actorUserId)
		if err != nil {
			return nil, err
		}
		err = tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_id"}, {Name: "field_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"field_type",
				"field_value_text", "field_value_number", "field_value_boolean",
				"field_value_date", "field_value_json",
				"smart_code", "updated_by",
			}),
		}).Create(row).Error
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetEntityDynamicData returns all dynamic fields of one entity in scope.
func GetEntityDynamicData(ctx context.Context, organizationId string, entityId string) ([]*DynamicData, error) {
	db := tenantDB(ctx, organizationId)
	var rows []*DynamicData
	if err := db.Where("entity_id = ?", entityId).Order("field_name ASC").Find(&rows).Error; err != nil {
		return nil, AsApiError(err)
	}
	return rows, nil
}
