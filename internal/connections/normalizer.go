package connections

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

const (
	stringListDataKey           = "string_list_data"
	itemUsernameKey             = "value"
	itemProfileURLKey           = "href"
	itemTimestampKey            = "timestamp"
	followingContainerKey       = "relationships_following"
	followersContainerKey       = "relationships_followers"
	jsonArrayOpeningCharacter   = '['
	jsonObjectOpeningCharacter  = '{'
	jsonStringOpeningCharacter  = '"'
	shapeNameUnknown            = "unknown"
	shapeNameUsernameList       = "username-list"
	shapeNameExportArray        = "export-array"
	shapeNameKeyedExport        = "keyed-export"
	jsonObjectOpeningDelimiter  = json.Delim('{')
	errMessageNotAnObject       = "json value is not an object"
	jsonNullLiteral             = "null"
	jsonWhitespaceCharacterList = " \t\r\n"
)

var errNotAnObject = errors.New(errMessageNotAnObject)

// maxTimestampSeconds is the first float64 value that no longer fits in an int64.
const maxTimestampSeconds = float64(math.MaxInt64)

// containerKeys lists the fields an export entry may use to wrap its entries one level deeper.
var containerKeys = []string{followingContainerKey, followersContainerKey}

// Shape identifies which of the accepted input layouts a raw text uses.
type Shape int

const (
	// ShapeUnknown covers unparseable text and layouts that carry no records.
	ShapeUnknown Shape = iota
	// ShapeUsernameList is a top-level array of bare usernames.
	ShapeUsernameList
	// ShapeExportArray is a top-level array of official export entries.
	ShapeExportArray
	// ShapeKeyedExport is a top-level object whose array values hold export entries.
	ShapeKeyedExport
)

func (shape Shape) String() string {
	switch shape {
	case ShapeUsernameList:
		return shapeNameUsernameList
	case ShapeExportArray:
		return shapeNameExportArray
	case ShapeKeyedExport:
		return shapeNameKeyedExport
	default:
		return shapeNameUnknown
	}
}

// Normalizer converts raw connection exports into canonical records.
// The zero value reads the wall clock and keeps usernames case-sensitive.
type Normalizer struct {
	Now      func() time.Time
	FoldCase bool
}

// Normalize classifies rawText and returns its canonical records. It never fails:
// malformed input yields an empty sequence.
func (normalizer Normalizer) Normalize(rawText string) []Record {
	return normalizeWithOptions(rawText, normalizer.now(), normalizer.FoldCase)
}

// Normalize converts rawText into canonical records using now as the fallback timestamp.
func Normalize(rawText string, now time.Time) []Record {
	return normalizeWithOptions(rawText, now, false)
}

// Classify reports the input layout detected for rawText.
func Classify(rawText string) Shape {
	return classifyInput([]byte(rawText)).shape
}

// FromUsernames builds canonical records from a bare list of usernames.
func FromUsernames(usernames []string, now time.Time) []Record {
	return fromUsernamesWithOptions(usernames, now, false)
}

// FromUsernames builds canonical records from a bare list of usernames, applying
// the normalizer's clock and case folding.
func (normalizer Normalizer) FromUsernames(usernames []string) []Record {
	return fromUsernamesWithOptions(usernames, normalizer.now(), normalizer.FoldCase)
}

// CanonicalUsername returns username as it is stored after canonicalization.
func (normalizer Normalizer) CanonicalUsername(username string) string {
	if normalizer.FoldCase {
		return strings.ToLower(username)
	}
	return username
}

func (normalizer Normalizer) now() time.Time {
	if normalizer.Now != nil {
		return normalizer.Now()
	}
	return time.Now()
}

func fromUsernamesWithOptions(usernames []string, now time.Time, foldCase bool) []Record {
	accumulator := newRecordAccumulator(foldCase)
	observedAt := now.Unix()
	for _, username := range usernames {
		accumulator.add(Record{Username: username, ObservedAt: observedAt})
	}
	return accumulator.records
}

func normalizeWithOptions(rawText string, now time.Time, foldCase bool) []Record {
	input := classifyInput([]byte(rawText))
	accumulator := newRecordAccumulator(foldCase)
	observedAt := now.Unix()

	switch input.shape {
	case ShapeUsernameList:
		for _, element := range input.elements {
			username, ok := decodeString(element)
			if !ok {
				continue
			}
			accumulator.add(Record{Username: username, ObservedAt: observedAt})
		}
	case ShapeExportArray:
		for _, element := range input.elements {
			entryFields, ok := decodeObject(element)
			if !ok {
				continue
			}
			if hasValue(entryFields, stringListDataKey) {
				extractEntry(entryFields, observedAt, accumulator)
				continue
			}
			for _, containerKey := range containerKeys {
				containedEntries, found := decodeArray(entryFields[containerKey])
				if !found {
					continue
				}
				for _, containedEntry := range containedEntries {
					if containedFields, isObject := decodeObject(containedEntry); isObject {
						extractEntry(containedFields, observedAt, accumulator)
					}
				}
				break
			}
		}
	case ShapeKeyedExport:
		for _, field := range input.fields {
			fieldElements, isArray := decodeArray(field.value)
			if !isArray {
				continue
			}
			for _, element := range fieldElements {
				entryFields, isObject := decodeObject(element)
				if !isObject || !hasValue(entryFields, stringListDataKey) {
					continue
				}
				extractEntry(entryFields, observedAt, accumulator)
			}
		}
	}
	return accumulator.records
}

// classifiedInput is the tagged union produced by structural classification.
type classifiedInput struct {
	shape    Shape
	elements []json.RawMessage
	fields   []objectField
}

type objectField struct {
	key   string
	value json.RawMessage
}

func classifyInput(data []byte) classifiedInput {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return classifiedInput{shape: ShapeUnknown}
	}
	switch trimmed[0] {
	case jsonArrayOpeningCharacter:
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return classifiedInput{shape: ShapeUnknown}
		}
		if len(elements) > 0 && isJSONString(elements[0]) {
			return classifiedInput{shape: ShapeUsernameList, elements: elements}
		}
		return classifiedInput{shape: ShapeExportArray, elements: elements}
	case jsonObjectOpeningCharacter:
		fields, err := decodeOrderedObject(trimmed)
		if err != nil {
			return classifiedInput{shape: ShapeUnknown}
		}
		return classifiedInput{shape: ShapeKeyedExport, fields: fields}
	default:
		return classifiedInput{shape: ShapeUnknown}
	}
}

// decodeOrderedObject decodes a JSON object while keeping its keys in document order.
func decodeOrderedObject(data []byte) ([]objectField, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	openingToken, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if openingToken != jsonObjectOpeningDelimiter {
		return nil, errNotAnObject
	}
	var fields []objectField
	for decoder.More() {
		keyToken, keyErr := decoder.Token()
		if keyErr != nil {
			return nil, keyErr
		}
		key, _ := keyToken.(string)
		var value json.RawMessage
		if valueErr := decoder.Decode(&value); valueErr != nil {
			return nil, valueErr
		}
		fields = append(fields, objectField{key: key, value: value})
	}
	if _, closeErr := decoder.Token(); closeErr != nil {
		return nil, closeErr
	}
	return fields, nil
}

func extractEntry(entryFields map[string]json.RawMessage, observedAt int64, accumulator *recordAccumulator) {
	items, isArray := decodeArray(entryFields[stringListDataKey])
	if !isArray {
		return
	}
	for _, item := range items {
		itemFields, isObject := decodeObject(item)
		if !isObject {
			continue
		}
		username, hasUsername := decodeString(itemFields[itemUsernameKey])
		if !hasUsername {
			continue
		}
		profileURL, _ := decodeString(itemFields[itemProfileURLKey])
		itemObservedAt, hasTimestamp := decodeTimestamp(itemFields[itemTimestampKey])
		if !hasTimestamp {
			itemObservedAt = observedAt
		}
		accumulator.add(Record{Username: username, ProfileURL: profileURL, ObservedAt: itemObservedAt})
	}
}

func isJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, jsonWhitespaceCharacterList)
	return len(trimmed) > 0 && trimmed[0] == jsonStringOpeningCharacter
}

func hasValue(fields map[string]json.RawMessage, key string) bool {
	value, exists := fields[key]
	if !exists {
		return false
	}
	return string(bytes.TrimSpace(value)) != jsonNullLiteral
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || elements == nil {
		return nil, false
	}
	return elements, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	if !isJSONString(raw) {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func decodeTimestamp(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil || seconds <= 0 || seconds >= maxTimestampSeconds {
		return 0, false
	}
	return int64(seconds), true
}

// recordAccumulator enforces username uniqueness: a repeated username keeps the
// position of its first occurrence and takes the data of its latest one.
type recordAccumulator struct {
	records   []Record
	positions map[string]int
	foldCase  bool
}

func newRecordAccumulator(foldCase bool) *recordAccumulator {
	return &recordAccumulator{
		records:   []Record{},
		positions: make(map[string]int),
		foldCase:  foldCase,
	}
}

func (accumulator *recordAccumulator) add(record Record) {
	if strings.TrimSpace(record.Username) == "" {
		return
	}
	if accumulator.foldCase {
		record.Username = strings.ToLower(record.Username)
	}
	if record.ProfileURL == "" {
		record.ProfileURL = ProfileURLFor(record.Username)
	}
	if position, exists := accumulator.positions[record.Username]; exists {
		accumulator.records[position] = record
		return
	}
	accumulator.positions[record.Username] = len(accumulator.records)
	accumulator.records = append(accumulator.records, record)
}
