package domain

import (
	"fmt"
	"strings"
)

// ObjectType is the BACnet object kind used to build device-side addresses.
type ObjectType int

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeAnalogInput
	ObjectTypeAnalogOutput
	ObjectTypeAnalogValue
	ObjectTypeBinaryInput
	ObjectTypeBinaryOutput
	ObjectTypeBinaryValue
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:  "AnalogInput",
	ObjectTypeAnalogOutput: "AnalogOutput",
	ObjectTypeAnalogValue:  "AnalogValue",
	ObjectTypeBinaryInput:  "BinaryInput",
	ObjectTypeBinaryOutput: "BinaryOutput",
	ObjectTypeBinaryValue:  "BinaryValue",
}

var objectTypeKebab = map[ObjectType]string{
	ObjectTypeAnalogInput:  "analog-input",
	ObjectTypeAnalogOutput: "analog-output",
	ObjectTypeAnalogValue:  "analog-value",
	ObjectTypeBinaryInput:  "binary-input",
	ObjectTypeBinaryOutput: "binary-output",
	ObjectTypeBinaryValue:  "binary-value",
}

func (t ObjectType) String() string {
	if s, ok := objectTypeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// Kebab returns the singular kebab-case form used by the device REST API
// in discovery responses (e.g. "analog-input").
func (t ObjectType) Kebab() string {
	return objectTypeKebab[t]
}

// KebabPlural returns the plural kebab-case form used in object URLs
// (e.g. "analog-inputs").
func (t ObjectType) KebabPlural() string {
	if s, ok := objectTypeKebab[t]; ok {
		return s + "s"
	}
	return ""
}

// ParseObjectType accepts both the configuration spelling ("AnalogInput",
// "analoginput") and the device API spelling ("analog-input").
func ParseObjectType(s string) (ObjectType, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for t, name := range objectTypeNames {
		if strings.ToLower(name) == norm {
			return t, nil
		}
	}
	return ObjectTypeUnknown, fmt.Errorf("%w: unknown object type %q", ErrConfig, s)
}

// PointKind selects the point behavior. It is a closed set: configuration
// with an unknown kind fails construction instead of producing a nil point.
type PointKind int

const (
	KindAnalogInput PointKind = iota
	KindAnalogOutput
	KindAnalogValue
	KindBinaryInput
	KindBinaryOutput
	KindBinaryValue
	KindActivation
)

func (k PointKind) String() string {
	switch k {
	case KindAnalogInput:
		return "AnalogInput"
	case KindAnalogOutput:
		return "AnalogOutput"
	case KindAnalogValue:
		return "AnalogValue"
	case KindBinaryInput:
		return "BinaryInput"
	case KindBinaryOutput:
		return "BinaryOutput"
	case KindBinaryValue:
		return "BinaryValue"
	case KindActivation:
		return "Activation"
	}
	return "Unknown"
}

// KindForObjectType maps a device object type to the point behavior driving
// it. Activation is not derivable from an object type; it is selected by the
// "activate" flag in configuration.
func KindForObjectType(t ObjectType) (PointKind, error) {
	switch t {
	case ObjectTypeAnalogInput:
		return KindAnalogInput, nil
	case ObjectTypeAnalogOutput:
		return KindAnalogOutput, nil
	case ObjectTypeAnalogValue:
		return KindAnalogValue, nil
	case ObjectTypeBinaryInput:
		return KindBinaryInput, nil
	case ObjectTypeBinaryOutput:
		return KindBinaryOutput, nil
	case ObjectTypeBinaryValue:
		return KindBinaryValue, nil
	}
	return 0, fmt.Errorf("%w: no point kind for object type %q", ErrConfig, t)
}

// Endpoint is one discovered addressable object on a device.
type Endpoint struct {
	ObjectName string
	ObjectType ObjectType
	Instance   int
}

// BatchRequest is one sub-request of a device batch write. URL is relative
// to the device root; the batch endpoint dispatches it internally.
type BatchRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	URL    string         `json:"url"`
	Body   map[string]any `json:"body"`
}

// DefaultWritePriority is the BACnet write priority used when a point does
// not configure one.
const DefaultWritePriority = 14

// PresentValueProperty is the device property holding an object's live value.
const PresentValueProperty = "present-value"
